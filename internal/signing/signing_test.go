package signing

import "testing"

func TestSigner(t *testing.T) {
	secret := []byte("topsecret")
	s := NewSigner(secret)
	sig := s.Sign("IAC-001", 1700000000)
	if len(sig) == 0 {
		t.Fatalf("expected signature")
	}
	if !s.Validate("IAC-001", "1700000000", sig) {
		t.Fatalf("expected signature to validate")
	}
	if s.Validate("IAC-002", "1700000000", sig) {
		t.Fatalf("expected validation to fail for wrong shipment id")
	}
	if s.Validate("IAC-001", "42", sig) {
		t.Fatalf("expected validation to fail for wrong expiry")
	}
	if s.Validate("IAC-001", "not-a-number", sig) {
		t.Fatalf("expected validation to fail for malformed expiry")
	}
}
