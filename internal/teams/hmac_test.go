package teams

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"
)

func signBody(t *testing.T, secret string, body []byte) string {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}
	mac := hmac.New(sha256.New, raw)
	mac.Write(body)
	return "HMAC " + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifier_ValidSignature(t *testing.T) {
	t.Parallel()

	secret := base64.StdEncoding.EncodeToString([]byte("shared-webhook-secret"))
	v, err := NewVerifier(secret)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	body := []byte(`{"type":"message","text":"<at>Bot</at> hello"}`)
	if err := v.Verify(signBody(t, secret, body), body); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestVerifier_MutatedBodyInvalidatesSignature(t *testing.T) {
	t.Parallel()

	secret := base64.StdEncoding.EncodeToString([]byte("shared-webhook-secret"))
	v, err := NewVerifier(secret)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	body := []byte(`{"type":"message","text":"hello"}`)
	header := signBody(t, secret, body)

	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i] ^= 0x01
		if err := v.Verify(header, mutated); err == nil {
			t.Fatalf("expected failure for mutation at byte %d", i)
		}
	}
}

func TestVerifier_RejectsBadHeaders(t *testing.T) {
	t.Parallel()

	secret := base64.StdEncoding.EncodeToString([]byte("secret"))
	v, err := NewVerifier(secret)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	body := []byte("{}")

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "wrong scheme", header: "Bearer abc123"},
		{name: "no signature", header: "HMAC"},
		{name: "garbage", header: "not-a-header"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := v.Verify(tt.header, body)
			if err == nil {
				t.Fatal("expected verification error")
			}
			var verr *VerificationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *VerificationError, got %T", err)
			}
		})
	}
}

func TestVerifier_SchemeCaseInsensitive(t *testing.T) {
	t.Parallel()

	secret := base64.StdEncoding.EncodeToString([]byte("secret"))
	v, err := NewVerifier(secret)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	body := []byte(`{"text":"hi"}`)

	header := signBody(t, secret, body)
	lowered := "hmac" + header[len("HMAC"):]
	if err := v.Verify(lowered, body); err != nil {
		t.Fatalf("expected lowercase scheme to verify, got %v", err)
	}
}

func TestNewVerifier_InvalidSecrets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		secret string
	}{
		{name: "empty", secret: ""},
		{name: "malformed base64", secret: "!!!not-base64!!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewVerifier(tt.secret); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestVerifierFromConfig_DisabledValues(t *testing.T) {
	t.Parallel()

	for _, secret := range []string{"", "DISABLED", "none", "Off", "false"} {
		if v := VerifierFromConfig(secret, nil); v != nil {
			t.Fatalf("expected nil verifier for %q", secret)
		}
	}

	valid := base64.StdEncoding.EncodeToString([]byte("secret"))
	if v := VerifierFromConfig(valid, nil); v == nil {
		t.Fatal("expected verifier for valid secret")
	}
}
