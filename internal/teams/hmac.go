package teams

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
)

// VerificationError describes why an inbound request failed signature
// verification. The Reason is safe to log; it never echoes the signature.
type VerificationError struct {
	Reason string
}

func (e *VerificationError) Error() string {
	return "signature verification failed: " + e.Reason
}

// Verifier checks the HMAC-SHA256 signatures the platform attaches to
// outgoing webhook requests. The platform signs the raw request body with
// a shared secret and sends the result as "HMAC <base64-signature>" in the
// Authorization header.
type Verifier struct {
	secret []byte
}

// disabledMarkers are config values that explicitly turn verification off.
var disabledMarkers = map[string]bool{
	"DISABLED": true,
	"NONE":     true,
	"OFF":      true,
	"FALSE":    true,
}

// NewVerifier creates a Verifier from the base64-encoded shared secret.
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("hmac secret is empty")
	}
	raw, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 secret: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("hmac secret decodes to zero bytes")
	}
	return &Verifier{secret: raw}, nil
}

// VerifierFromConfig builds a Verifier from a config value. It returns nil
// when the secret is unset or explicitly disabled, which callers treat as
// verification turned off; a malformed secret is also treated as disabled
// rather than a startup failure, matching the rest of the boundary's
// fail-into-a-response behavior.
func VerifierFromConfig(secret string, log *slog.Logger) *Verifier {
	if log == nil {
		log = slog.Default()
	}
	if secret == "" || disabledMarkers[strings.ToUpper(secret)] {
		log.Warn("hmac verification disabled", slog.Bool("configured", secret != ""))
		return nil
	}
	v, err := NewVerifier(secret)
	if err != nil {
		log.Error("hmac verifier creation failed", slog.String("error", err.Error()))
		return nil
	}
	return v
}

// Verify checks the Authorization header against the exact request body
// bytes. Any header in a scheme other than "HMAC <sig>" is rejected before
// a hash is computed. The signature comparison is constant time.
func (v *Verifier) Verify(authHeader string, body []byte) error {
	if authHeader == "" {
		return &VerificationError{Reason: "missing authorization header"}
	}

	scheme, provided, found := strings.Cut(authHeader, " ")
	if !found || !strings.EqualFold(scheme, "HMAC") {
		return &VerificationError{Reason: "invalid authorization scheme"}
	}

	computed := v.computeSignature(body)
	if !hmac.Equal([]byte(provided), []byte(computed)) {
		return &VerificationError{Reason: "signature mismatch"}
	}
	return nil
}

func (v *Verifier) computeSignature(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
