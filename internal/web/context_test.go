package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

const testWindow = time.Minute

func TestRequireOrganization(t *testing.T) {
	var gotOrg uuid.UUID
	handler := requireOrganization(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOrg = organizationID(r)
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid uuid", uuid.NewString(), http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"not a uuid", "org-12345", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotOrg = uuid.Nil
			req := httptest.NewRequest(http.MethodGet, "/api/configurations", nil)
			if tt.header != "" {
				req.Header.Set(OrganizationHeader, tt.header)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && gotOrg.String() != tt.header {
				t.Errorf("organizationID = %s, want %s", gotOrg, tt.header)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(2, testWindow)

	if !rl.allow("1.2.3.4") || !rl.allow("1.2.3.4") {
		t.Fatal("first two requests should pass")
	}
	if rl.allow("1.2.3.4") {
		t.Fatal("third request should be limited")
	}
	// Separate IPs have separate buckets.
	if !rl.allow("5.6.7.8") {
		t.Fatal("different ip should pass")
	}
}
