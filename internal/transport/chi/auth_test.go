package chi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestBearerAuth(t *testing.T) {
	tests := []struct {
		name   string
		keys   []string
		header string
		want   int
	}{
		{"no keys", nil, "", http.StatusOK},
		{"only empty keys", []string{"", ""}, "", http.StatusOK},
		{"missing header", []string{"secret"}, "", http.StatusUnauthorized},
		{"basic scheme", []string{"secret"}, "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"wrong key", []string{"secret"}, "Bearer wrong-key", http.StatusUnauthorized},
		{"valid key", []string{"secret"}, "Bearer secret", http.StatusOK},
		{"second of two keys", []string{"key1", "key2"}, "Bearer key2", http.StatusOK},
		{"prefix of key", []string{"secret"}, "Bearer sec", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/search", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			BearerAuthMiddleware(tt.keys)(okHandler()).ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Fatalf("got %d, want %d", rr.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized {
				var errResp ErrorResponse
				if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
					t.Fatalf("decode error response: %v", err)
				}
				if errResp.Code != codeUnauthorized {
					t.Errorf("code = %s, want %s", errResp.Code, codeUnauthorized)
				}
			}
		})
	}
}

func TestRequireAgent(t *testing.T) {
	var seen string
	h := RequireAgent(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = AgentFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/search", http.NoBody))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing agent: got %d, want 401", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/search", http.NoBody)
	req.Header.Set(AgentHeader, "  agent-7 ")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rr.Code)
	}
	if seen != "agent-7" {
		t.Errorf("agent = %q, want agent-7", seen)
	}
}
