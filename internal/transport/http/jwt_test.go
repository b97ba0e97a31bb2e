package http

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func makeJWT(secret, iss, operator string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": operator,
		"exp": time.Now().Add(ttl).Unix(),
	}
	if iss != "" {
		claims["iss"] = iss
	}
	if operator != "" {
		claims["operator"] = operator
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func TestOperatorJWT(t *testing.T) {
	secret := "testsecret"
	srv := startTestServer(t, secret)

	valid, err := srv.tokens.IssueToken("ops")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	wrongSecret, _ := makeJWT("othersecret", "lexyo", "ops", time.Minute)
	expired, _ := makeJWT(secret, "lexyo", "ops", -time.Minute)
	wrongIssuer, _ := makeJWT(secret, "elsewhere", "ops", time.Minute)
	noOperator, _ := makeJWT(secret, "lexyo", "", time.Minute)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "not-a-jwt", http.StatusUnauthorized},
		{"wrong secret", wrongSecret, http.StatusUnauthorized},
		{"expired", expired, http.StatusUnauthorized},
		{"wrong issuer", wrongIssuer, http.StatusUnauthorized},
		{"no operator", noOperator, http.StatusUnauthorized},
		{"valid", valid, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := srv.do(t, "GET", "/api/admin/bans", tt.token)
			if status != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, status, body)
			}
		})
	}
}

func TestOperatorJWTMalformedHeader(t *testing.T) {
	srv := startTestServer(t, "testsecret")

	req, _ := http.NewRequest(http.MethodGet, srv.ts.URL+"/api/admin/bans", nil)
	req.Header.Set("Authorization", "Basic b3BzOnB3")
	resp, err := srv.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for non-bearer scheme, got %d", resp.StatusCode)
	}
}

func TestOperatorAPIDisabledWithoutSecret(t *testing.T) {
	srv := startTestServer(t, "")

	if _, err := srv.tokens.IssueToken("ops"); err == nil {
		t.Fatalf("tokens must not be issued without a secret")
	}
	token, _ := makeJWT("", "lexyo", "ops", time.Minute)
	status, _ := srv.do(t, "GET", "/api/admin/bans", token)
	if status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while the operator api is disabled, got %d", status)
	}
}
