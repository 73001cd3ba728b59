package authmw

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func protected(token string) http.Handler {
	return APIToken(token)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAPIToken_BearerAccepted(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	rr := httptest.NewRecorder()
	protected("sekrit").ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestAPIToken_BearerCaseInsensitiveScheme(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer sekrit")
	rr := httptest.NewRecorder()
	protected("sekrit").ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestAPIToken_APIKeyHeaderAccepted(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "sekrit")
	rr := httptest.NewRecorder()
	protected("sekrit").ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestAPIToken_Rejections(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"no credentials", func(*http.Request) {}},
		{"wrong bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer wrong") }},
		{"wrong api key", func(r *http.Request) { r.Header.Set("X-API-Key", "wrong") }},
		{"malformed authorization", func(r *http.Request) { r.Header.Set("Authorization", "sekrit") }},
		{"basic scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic sekrit") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tc.setup(req)
			rr := httptest.NewRecorder()
			protected("sekrit").ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestAPIToken_EmptyTokenDisablesAuth(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	protected("").ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d with auth disabled", rr.Code, http.StatusOK)
	}
}

func TestAPIToken_WrongBearerRightAPIKey(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	req.Header.Set("X-API-Key", "sekrit")
	rr := httptest.NewRecorder()
	protected("sekrit").ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d when either credential matches", rr.Code, http.StatusOK)
	}
}
