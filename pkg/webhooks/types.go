// Package webhooks manages workspace-registered webhook endpoints and
// delivers signed event payloads to them.
package webhooks

import (
	"errors"
	"time"

	"github.com/workroomhq/workroom/pkg/activity"
)

// Endpoint represents a workspace-registered webhook endpoint. Endpoints
// count against the plan's webhook limit.
type Endpoint struct {
	ID          int64                `json:"id"`
	WorkspaceID int64                `json:"workspace_id"`
	URL         string               `json:"url"`
	Secret      string               `json:"secret,omitempty"`
	Events      []activity.EventType `json:"events"`
	Active      bool                 `json:"active"`
	CreatedBy   int64                `json:"created_by"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// Subscribed reports whether the endpoint wants this event type.
func (e *Endpoint) Subscribed(eventType activity.EventType) bool {
	for _, t := range e.Events {
		if t == eventType {
			return true
		}
	}
	return false
}

// DeliveryStatus tracks the outcome of one delivery.
type DeliveryStatus string

const (
	DeliveryStatusPending DeliveryStatus = "pending"
	DeliveryStatusSuccess DeliveryStatus = "success"
	DeliveryStatusFailed  DeliveryStatus = "failed"
)

// Delivery is one delivery-log row.
type Delivery struct {
	ID          string             `json:"id"`
	EndpointID  int64              `json:"endpoint_id"`
	EventType   activity.EventType `json:"event_type"`
	Status      DeliveryStatus     `json:"status"`
	StatusCode  int                `json:"status_code,omitempty"`
	Attempts    int                `json:"attempts"`
	Error       string             `json:"error,omitempty"`
	DeliveredAt *time.Time         `json:"delivered_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Payload is the JSON body POSTed to endpoints.
type Payload struct {
	ID          string                 `json:"id"`
	Type        activity.EventType     `json:"type"`
	WorkspaceID int64                  `json:"workspace_id"`
	Timestamp   time.Time              `json:"timestamp"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// CreateEndpointRequest is the payload for registering an endpoint.
type CreateEndpointRequest struct {
	URL    string               `json:"url"`
	Events []activity.EventType `json:"events"`
}

// ErrEndpointNotFound is returned for unknown endpoint IDs.
var ErrEndpointNotFound = errors.New("webhook endpoint not found")
