// Package signing produces the HMAC request signatures required by the
// venues' private REST endpoints.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
)

// ErrMissingCredentials is returned by Validate when any secret is empty.
var ErrMissingCredentials = errors.New("missing api credentials")

// Credentials holds the three secrets issued by a venue. They are read-only
// once the process has started.
type Credentials struct {
	APIKey     string
	Secret     string
	Passphrase string
}

// Validate reports ErrMissingCredentials if any secret is absent.
func (c Credentials) Validate() error {
	var missing []string
	if c.APIKey == "" {
		missing = append(missing, "api key")
	}
	if c.Secret == "" {
		missing = append(missing, "secret key")
	}
	if c.Passphrase == "" {
		missing = append(missing, "passphrase")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingCredentials, missing)
	}
	return nil
}

// String returns a redacted representation suitable for logging.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{key=%s, secret=%s, passphrase=%s}",
		redact(c.APIKey), redact(c.Secret), redact(c.Passphrase))
}

// LogValue keeps secrets out of structured logs.
func (c Credentials) LogValue() slog.Value {
	return slog.StringValue(c.String())
}

// Sign returns base64(HMAC-SHA256(secret, timestamp+method+path+body)).
func Sign(secret, timestamp, method, path, body string) string {
	return hmacSHA256Base64([]byte(secret), timestamp+method+path+body)
}

// SignPassphrase returns base64(HMAC-SHA256(secret, passphrase)), sent in
// place of the raw passphrase by venues using v2 API keys.
func SignPassphrase(secret, passphrase string) string {
	return hmacSHA256Base64([]byte(secret), passphrase)
}

func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func redact(s string) string {
	if s == "" {
		return "<empty>"
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}

var _ slog.LogValuer = Credentials{}
