// AngelaMos | 2026
// ratelimit_test.go

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestKeyBySessionToken(t *testing.T) {
	tests := []struct {
		name    string
		build   func() *http.Request
		wantKey string
	}{
		{
			name: "header wins on mutating requests",
			build: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/v1/onboarding/otp/request", nil)
				r.Header.Set(SessionTokenHeader, "onb_abc")
				return r
			},
			wantKey: "ratelimit:session:onb_abc",
		},
		{
			name: "query token on the resume endpoint",
			build: func() *http.Request {
				return httptest.NewRequest(
					http.MethodGet, "/v1/onboarding/session?token=onb_xyz", nil)
			},
			wantKey: "ratelimit:session:onb_xyz",
		},
		{
			name: "header beats query when both are present",
			build: func() *http.Request {
				r := httptest.NewRequest(
					http.MethodGet, "/v1/onboarding/session?token=onb_query", nil)
				r.Header.Set(SessionTokenHeader, "onb_header")
				return r
			},
			wantKey: "ratelimit:session:onb_header",
		},
		{
			name: "falls back to IP before a token exists",
			build: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/v1/onboarding/start", nil)
				r.RemoteAddr = "203.0.113.7:51000"
				return r
			},
			wantKey: "ratelimit:ip:203.0.113.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KeyBySessionToken(tt.build()); got != tt.wantKey {
				t.Errorf("KeyBySessionToken() = %q, want %q", got, tt.wantKey)
			}
		})
	}
}
