package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/certiview/certiview/internal/platform/audit"
	"github.com/certiview/certiview/internal/platform/auth"
	"github.com/certiview/certiview/internal/platform/clock"
	"github.com/certiview/certiview/internal/platform/metrics"
	"github.com/certiview/certiview/internal/service"
)

const testSecret = "server-test-secret"

func newTestServer(t *testing.T) (*echo.Echo, *audit.MemoryStore) {
	t.Helper()
	store := audit.NewMemoryStore(clock.RealClock{})
	m := metrics.New(prometheus.NewRegistry())
	recorder := service.NewAuditRecorder(store, m)
	verifier := auth.NewVerifier(testSecret, "", "")

	e := echo.New()
	New(nil, recorder, verifier).Register(e)
	return e, store
}

func bearerToken(t *testing.T) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":        uuid.NewString(),
		"actor_type": "USER",
		"exp":        time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + s
}

func doRequest(e *echo.Echo, method, target, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	e, _ := newTestServer(t)
	rec := doRequest(e, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestInternalEndpointsRequireBearer(t *testing.T) {
	e, _ := newTestServer(t)
	for _, target := range []string{"/internal/audit/verify", "/internal/audit/entries"} {
		rec := doRequest(e, http.MethodGet, target, "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s without token: status = %d, want 401", target, rec.Code)
		}
		rec = doRequest(e, http.MethodGet, target, "Bearer not-a-token")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s with bad token: status = %d, want 401", target, rec.Code)
		}
	}
}

func TestVerifyEndpoint(t *testing.T) {
	e, store := newTestServer(t)
	for i := 0; i < 3; i++ {
		if _, err := store.Append(context.Background(), audit.Record{
			ActorType:  "SERVICE",
			Action:     "create",
			EntityType: "review",
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	rec := doRequest(e, http.MethodGet, "/internal/audit/verify", bearerToken(t))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var result audit.VerificationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !result.Valid || result.CheckedEntries != 3 {
		t.Fatalf("result = %+v, want valid with 3 entries", result)
	}

	store.Tamper(2, func(e *audit.Entry) { e.ContentHash = "deadbeef" })
	rec = doRequest(e, http.MethodGet, "/internal/audit/verify", bearerToken(t))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Valid || result.FirstInvalidID == nil || *result.FirstInvalidID != 2 {
		t.Fatalf("result = %+v, want invalid at entry 2", result)
	}
}

func TestListAuditEntries(t *testing.T) {
	e, store := newTestServer(t)
	for i := 0; i < 5; i++ {
		entityType := "review"
		if i%2 == 1 {
			entityType = "framework"
		}
		if _, err := store.Append(context.Background(), audit.Record{
			ActorType:  "SERVICE",
			Action:     "update",
			EntityType: entityType,
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	type listResponse struct {
		Entries []auditEntryDTO `json:"entries"`
		Total   int             `json:"total"`
	}

	rec := doRequest(e, http.MethodGet, "/internal/audit/entries?entity_type=review", bearerToken(t))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body listResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 3 || len(body.Entries) != 3 {
		t.Fatalf("filtered total = %d entries = %d, want 3/3", body.Total, len(body.Entries))
	}
	for _, entry := range body.Entries {
		if entry.EntityType != "review" {
			t.Fatalf("entity_type = %q leaked through filter", entry.EntityType)
		}
	}

	rec = doRequest(e, http.MethodGet, "/internal/audit/entries?offset=4&limit=10", bearerToken(t))
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 5 || len(body.Entries) != 1 {
		t.Fatalf("paged total = %d entries = %d, want 5/1", body.Total, len(body.Entries))
	}
	if body.Entries[0].ID != 5 {
		t.Fatalf("paged entry id = %d, want 5", body.Entries[0].ID)
	}
}

func TestAnalyzeWithoutDatabase(t *testing.T) {
	e, _ := newTestServer(t)
	rec := doRequest(e, http.MethodPost, "/internal/reviews/"+uuid.NewString()+"/analyze", bearerToken(t))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 when analysis has no database", rec.Code)
	}
}
