package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/workroomhq/workroom/pkg/billing"
	"github.com/workroomhq/workroom/pkg/httputil"
	"github.com/workroomhq/workroom/pkg/observability"
)

// maxStripePayload bounds the webhook body we are willing to read.
const maxStripePayload = 1 << 20

// BillingHandlers consumes Stripe webhook events.
type BillingHandlers struct {
	billing billing.Service
	logger  *observability.Logger
}

// NewBillingHandlers creates a BillingHandlers.
func NewBillingHandlers(service billing.Service, logger *observability.Logger) *BillingHandlers {
	return &BillingHandlers{billing: service, logger: logger}
}

// StripeWebhook handles POST /api/v1/billing/stripe/webhook. The raw body
// is what the signature covers, so it is read before any decoding.
func (h *BillingHandlers) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxStripePayload))
	if err != nil {
		httputil.WriteBadRequest(w, "failed to read payload")
		return
	}

	err = h.billing.HandleStripeWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		h.logger.WithError(err).Error("failed to process stripe webhook")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]string{"received": "true"})
}
