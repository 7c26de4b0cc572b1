// AngelaMos | 2026
// handler_test.go

package onboarding

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

const testConfirmSecret = "confirm-secret"

func newTestRouter(t *testing.T) (*fixture, chi.Router) {
	t.Helper()

	f := newFixture(t)
	handler := NewHandler(f.svc, testConfirmSecret)

	router := chi.NewRouter()
	router.Route("/v1", handler.RegisterRoutes)

	return f, router
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doJSON(
	t *testing.T,
	router chi.Router,
	method, path string,
	body any,
	header http.Header,
) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp apiResponse
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}

	return rec, resp
}

func startSession(t *testing.T, router chi.Router, plan, email string) string {
	t.Helper()

	rec, resp := doJSON(t, router, http.MethodPost, "/v1/onboarding/start",
		map[string]string{"plan_descriptor": plan, "email": email}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d, body %s", rec.Code, rec.Body.String())
	}

	var data StartResponse
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("decode start data: %v", err)
	}
	return data.Token
}

func TestHandlerStartValidation(t *testing.T) {
	_, router := newTestRouter(t)

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{
			name: "valid",
			body: map[string]string{
				"plan_descriptor": "starter",
				"email":           "a@example.com",
			},
			want: http.StatusCreated,
		},
		{
			name: "missing email",
			body: map[string]string{"plan_descriptor": "starter"},
			want: http.StatusBadRequest,
		},
		{
			name: "bad email",
			body: map[string]string{
				"plan_descriptor": "starter",
				"email":           "not-an-email",
			},
			want: http.StatusBadRequest,
		},
		{
			name: "unknown plan",
			body: map[string]string{
				"plan_descriptor": "enterprise",
				"email":           "a@example.com",
			},
			want: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := doJSON(
				t, router,
				http.MethodPost, "/v1/onboarding/start",
				tt.body, nil,
			)
			if rec.Code != tt.want {
				t.Errorf(
					"status = %d, want %d (body %s)",
					rec.Code, tt.want, rec.Body.String(),
				)
			}
		})
	}
}

func TestHandlerFullJourney(t *testing.T) {
	_, router := newTestRouter(t)
	token := startSession(t, router, "starter", "founder@example.com")

	rec, _ := doJSON(t, router, http.MethodPost, "/v1/onboarding/otp/request",
		map[string]string{"token": token}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("otp/request status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec, resp := doJSON(t, router, http.MethodPost, "/v1/onboarding/otp/verify",
		map[string]string{"token": token, "code": "123456"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("otp/verify status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec, _ = doJSON(t, router, http.MethodPost, "/v1/onboarding/business",
		map[string]string{
			"token": token, "name": "Acme",
			"descriptor": "acme", "country": "DE", "currency": "EUR",
		}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("business status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec, resp = doJSON(t, router, http.MethodPost, "/v1/onboarding/complete",
		map[string]string{"token": token}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete status = %d, body %s", rec.Code, rec.Body.String())
	}

	var done CompleteResponse
	if err := json.Unmarshal(resp.Data, &done); err != nil {
		t.Fatalf("decode complete data: %v", err)
	}
	if done.Stage != StageCompleted || done.AuthToken == "" {
		t.Errorf("complete response = %+v, want completed stage with tokens", done)
	}
}

func TestHandlerWrongCode(t *testing.T) {
	_, router := newTestRouter(t)
	token := startSession(t, router, "starter", "founder@example.com")

	doJSON(t, router, http.MethodPost, "/v1/onboarding/otp/request",
		map[string]string{"token": token}, nil)

	rec, resp := doJSON(t, router, http.MethodPost, "/v1/onboarding/otp/verify",
		map[string]string{"token": token, "code": "000000"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != "CODE_MISMATCH" {
		t.Errorf("error = %+v, want CODE_MISMATCH", resp.Error)
	}
}

func TestHandlerOTPCooldownMapsTo429(t *testing.T) {
	_, router := newTestRouter(t)
	token := startSession(t, router, "starter", "founder@example.com")

	doJSON(t, router, http.MethodPost, "/v1/onboarding/otp/request",
		map[string]string{"token": token}, nil)

	rec, resp := doJSON(t, router, http.MethodPost, "/v1/onboarding/otp/request",
		map[string]string{"token": token}, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != "RATE_LIMITED" {
		t.Errorf("error = %+v, want RATE_LIMITED", resp.Error)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

func TestHandlerConfirmPaymentRequiresSecret(t *testing.T) {
	f, router := newTestRouter(t)
	token := startSession(t, router, "pro", "founder@example.com")

	doJSON(t, router, http.MethodPost, "/v1/onboarding/oauth/exchange",
		map[string]string{"token": token, "code": "authcode"}, nil)
	doJSON(t, router, http.MethodPost, "/v1/onboarding/business",
		map[string]string{
			"token": token, "name": "Acme",
			"descriptor": "acme", "country": "DE", "currency": "EUR",
		}, nil)
	doJSON(t, router, http.MethodPost, "/v1/onboarding/payment/start",
		map[string]string{
			"token":       token,
			"success_url": "https://app.example.com/ok",
			"cancel_url":  "https://app.example.com/no",
		}, nil)

	// Without the shared secret the callback is rejected and the session
	// stays at payment_pending.
	rec, _ := doJSON(t, router, http.MethodPost, "/v1/onboarding/payment/confirm",
		map[string]string{"token": token}, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unauthenticated confirm status = %d, want 403", rec.Code)
	}

	session, err := f.svc.Get(t.Context(), token)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if session.PaymentCompleted {
		t.Fatal("payment marked complete without provider secret")
	}

	header := http.Header{}
	header.Set(confirmSecretHeader, testConfirmSecret)
	rec, _ = doJSON(t, router, http.MethodPost, "/v1/onboarding/payment/confirm",
		map[string]string{"token": token}, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestHandlerExpiredSessionIsGone(t *testing.T) {
	f, router := newTestRouter(t)
	token := startSession(t, router, "starter", "founder@example.com")

	f.now = f.now.Add(25 * time.Hour)

	rec, resp := doJSON(t, router, http.MethodPost, "/v1/onboarding/otp/request",
		map[string]string{"token": token}, nil)
	if rec.Code != http.StatusGone {
		t.Fatalf("status = %d, want 410", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != "SESSION_EXPIRED" {
		t.Errorf("error = %+v, want SESSION_EXPIRED", resp.Error)
	}
}

func TestHandlerGetSession(t *testing.T) {
	_, router := newTestRouter(t)
	token := startSession(t, router, "pro", "founder@example.com")

	path := fmt.Sprintf("/v1/onboarding/session?token=%s", token)
	rec, resp := doJSON(t, router, http.MethodGet, path, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var snapshot SessionSnapshot
	if err := json.Unmarshal(resp.Data, &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snapshot.Stage != StagePlanSelected || !snapshot.IsPaidPlan {
		t.Errorf("snapshot = %+v, want plan_selected paid session", snapshot)
	}

	rec, _ = doJSON(t, router, http.MethodGet, "/v1/onboarding/session", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing token status = %d, want 400", rec.Code)
	}

	rec, _ = doJSON(
		t, router,
		http.MethodGet, "/v1/onboarding/session?token=onb_unknown",
		nil, nil,
	)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown token status = %d, want 404", rec.Code)
	}
}

func TestHandlerUnknownSessionToken(t *testing.T) {
	_, router := newTestRouter(t)

	rec, _ := doJSON(t, router, http.MethodPost, "/v1/onboarding/otp/request",
		map[string]string{"token": "onb_missing1234"}, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
