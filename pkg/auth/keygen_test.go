package auth

import (
	"strings"
	"testing"
)

func TestKeyGenerator_GenerateKey(t *testing.T) {
	kg := NewKeyGenerator()

	key, keyHash, keyPrefix, err := kg.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	if !strings.HasPrefix(key, KeyPrefix) {
		t.Errorf("Key should start with %q, got %q", KeyPrefix, key)
	}

	// SHA256 = 64 hex chars
	if len(keyHash) != 64 {
		t.Errorf("KeyHash length = %d, want 64", len(keyHash))
	}

	if !strings.HasPrefix(keyPrefix, KeyPrefix) {
		t.Errorf("KeyPrefix should start with %q, got %q", KeyPrefix, keyPrefix)
	}
	if len(keyPrefix) != len(KeyPrefix)+8 {
		t.Errorf("KeyPrefix length = %d, want %d", len(keyPrefix), len(KeyPrefix)+8)
	}

	// 32 random bytes base64url-encoded without padding
	encoded := strings.TrimPrefix(key, KeyPrefix)
	if len(encoded) != 43 {
		t.Errorf("Encoded secret length = %d, want 43", len(encoded))
	}

	if kg.HashKey(key) != keyHash {
		t.Error("Returned hash should match HashKey of the plaintext")
	}
}

func TestKeyGenerator_GenerateKey_Uniqueness(t *testing.T) {
	kg := NewKeyGenerator()

	keys := make(map[string]bool)
	hashes := make(map[string]bool)

	for i := 0; i < 100; i++ {
		key, keyHash, _, err := kg.GenerateKey()
		if err != nil {
			t.Fatalf("GenerateKey() error = %v", err)
		}

		if keys[key] {
			t.Errorf("Duplicate key generated: %s", key)
		}
		if hashes[keyHash] {
			t.Errorf("Duplicate key hash generated: %s", keyHash)
		}

		keys[key] = true
		hashes[keyHash] = true
	}
}

func TestKeyGenerator_HashKey(t *testing.T) {
	kg := NewKeyGenerator()

	key := "wsk_test123456789"
	hash1 := kg.HashKey(key)
	hash2 := kg.HashKey(key)

	if hash1 != hash2 {
		t.Error("Same key should produce same hash")
	}
	if len(hash1) != 64 {
		t.Errorf("Hash length = %d, want 64", len(hash1))
	}

	hash3 := kg.HashKey("wsk_different")
	if hash1 == hash3 {
		t.Error("Different keys should produce different hashes")
	}
}

func TestKeyGenerator_ValidateKeyFormat(t *testing.T) {
	kg := NewKeyGenerator()

	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{
			name:    "valid key",
			key:     "wsk_abc123def456",
			wantErr: false,
		},
		{
			name:    "missing prefix",
			key:     "abc123def456",
			wantErr: true,
		},
		{
			name:    "wrong prefix",
			key:     "other_abc123def456",
			wantErr: true,
		},
		{
			name:    "empty key part",
			key:     "wsk_",
			wantErr: true,
		},
		{
			name:    "invalid base64",
			key:     "wsk_!!!invalid!!!",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := kg.ValidateKeyFormat(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateKeyFormat() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestKeyGenerator_ExtractPrefix(t *testing.T) {
	kg := NewKeyGenerator()

	tests := []struct {
		name string
		key  string
		want string
	}{
		{
			name: "normal key",
			key:  "wsk_abc123def456",
			want: "wsk_abc123de",
		},
		{
			name: "short key",
			key:  "wsk_abc",
			want: "wsk_abc",
		},
		{
			name: "no prefix",
			key:  "invalid",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := kg.ExtractPrefix(tt.key)
			if got != tt.want {
				t.Errorf("ExtractPrefix() = %q, want %q", got, tt.want)
			}
		})
	}
}
