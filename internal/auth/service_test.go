package auth

import (
	"errors"
	"testing"
	"time"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	return NewService(&JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	})
}

func TestIssueToken_RejectsInvalidOperator(t *testing.T) {
	svc := newTestService(t)

	for _, name := range []string{"", " a ", string(make([]byte, 65))} {
		if _, err := svc.IssueToken(name); !errors.Is(err, ErrInvalidOperator) {
			t.Fatalf("expected ErrInvalidOperator for %q, got %v", name, err)
		}
	}
}

func TestIssueToken_RoundTrip(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.IssueToken(" ops ")
	if err != nil {
		t.Fatalf("expected token, got %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}
	if claims.Operator != "ops" {
		t.Fatalf("expected trimmed operator, got %q", claims.Operator)
	}
	if claims.Subject != "ops" {
		t.Fatalf("expected subject ops, got %q", claims.Subject)
	}
}

func TestValidateToken_Rejects(t *testing.T) {
	svc := newTestService(t)

	other := NewService(&JWTConfig{Secret: []byte("other"), Issuer: "test", Audience: "test", TTL: time.Hour})
	foreign, err := other.IssueToken("ops")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	wrongIssuer := NewService(&JWTConfig{Secret: []byte("test-secret-change-me"), Issuer: "elsewhere", Audience: "test", TTL: time.Hour})
	misissued, err := wrongIssuer.IssueToken("ops")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	expiredSvc := NewService(&JWTConfig{Secret: []byte("test-secret-change-me"), Issuer: "test", Audience: "test", TTL: -time.Minute})
	expired, err := expiredSvc.IssueToken("ops")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", foreign},
		{"wrong issuer", misissued},
		{"expired", expired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ValidateToken(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestDisabledService(t *testing.T) {
	svc := NewService(&JWTConfig{})
	if svc.Enabled() {
		t.Fatalf("expected disabled service without secret")
	}
	if _, err := svc.IssueToken("ops"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	if _, err := svc.ValidateToken("x"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestKeyVerifier(t *testing.T) {
	hash, err := HashKey("hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	tests := []struct {
		name      string
		verifier  *KeyVerifier
		candidate string
		want      bool
	}{
		{"plain match", NewKeyVerifier("hunter2", ""), "hunter2", true},
		{"plain mismatch", NewKeyVerifier("hunter2", ""), "hunter3", false},
		{"hash match", NewKeyVerifier("", hash), "hunter2", true},
		{"hash wins over plain", NewKeyVerifier("other", hash), "other", false},
		{"empty candidate", NewKeyVerifier("hunter2", ""), "", false},
		{"unconfigured", NewKeyVerifier("", ""), "anything", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.verifier.Check(tt.candidate); got != tt.want {
				t.Fatalf("Check(%q) = %v, want %v", tt.candidate, got, tt.want)
			}
		})
	}

	if NewKeyVerifier("", "").Configured() {
		t.Fatalf("expected unconfigured verifier")
	}
}
