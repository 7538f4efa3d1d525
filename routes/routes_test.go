package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"refund-review-api/models"
	"refund-review-api/services"
	"refund-review-api/store"
)

const testIngestToken = "ingest-secret"

type apiFixture struct {
	router *gin.Engine
	store  *store.MemoryStore
	auth   *services.AuthService
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	feed := store.NewLocalFeed()
	t.Cleanup(func() { _ = feed.Close() })
	st := store.NewMemoryStore(feed)
	enforcer, err := services.NewCapabilityEnforcer()
	if err != nil {
		t.Fatalf("enforcer: %v", err)
	}
	fanout := services.NewNotificationFanout(st, feed)
	reviews := services.NewReviewService(st, fanout)
	auth := services.NewAuthService(st, "route-test-secret", time.Hour)

	router := gin.New()
	SetupRoutes(router, Dependencies{
		Auth:         auth,
		Enforcer:     enforcer,
		Reviews:      reviews,
		Sessions:     services.NewSessionRegistry(reviews),
		Fanout:       fanout,
		Transactions: services.NewTransactionStream(reviews, feed),
		Ingest:       services.NewIngestService(st, fanout),
		IngestToken:  testIngestToken,
	})
	return &apiFixture{router: router, store: st, auth: auth}
}

func (f *apiFixture) reviewer(t *testing.T, id string, role models.Role, warehouse, region string) string {
	t.Helper()
	r := &models.Reviewer{ID: id, Email: id + "@example.com", Role: role}
	if warehouse != "" {
		r.AssignedWarehouseID = &warehouse
	}
	if region != "" {
		r.AssignedRegionID = &region
	}
	if err := f.store.SaveReviewer(context.Background(), r); err != nil {
		t.Fatalf("save reviewer: %v", err)
	}
	token, err := f.auth.IssueToken(*r)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	out := map[string]interface{}{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec.Code, out
}

func (f *apiFixture) ingest(t *testing.T, records ...services.IngestRecord) {
	t.Helper()
	raw, _ := json.Marshal(map[string]interface{}{"transactions": records})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest/transactions", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Ingest-Token", testIngestToken)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("ingest: %d %s", rec.Code, rec.Body.String())
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newAPIFixture(t)
	for _, tc := range []struct{ token string }{{""}, {"not-a-jwt"}} {
		code, body := f.do(t, http.MethodGet, "/api/v1/transactions", tc.token, nil)
		if code != http.StatusUnauthorized || body["error"] == "" {
			t.Fatalf("token %q: expected 401, got %d %v", tc.token, code, body)
		}
	}
	if code, _ := f.do(t, http.MethodGet, "/api/v1/health", "", nil); code != http.StatusOK {
		t.Fatalf("health: %d", code)
	}
}

func TestIngestRequiresSharedToken(t *testing.T) {
	f := newAPIFixture(t)
	code, _ := f.do(t, http.MethodPost, "/api/v1/ingest/transactions", "", map[string]interface{}{
		"transactions": []services.IngestRecord{{WarehouseID: "W-1", RegionID: "R-1"}},
	})
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without ingest token, got %d", code)
	}
}

func TestReviewFlowOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	f.ingest(t,
		services.IngestRecord{ID: "T1", TransactionCode: "RF-1", WarehouseID: "W-11", RegionID: "R-01", RiskScore: 0.95},
		services.IngestRecord{ID: "T2", TransactionCode: "RF-2", WarehouseID: "W-21", RegionID: "R-02", RiskScore: 0.3},
	)
	rm := f.reviewer(t, "rm", models.RoleRegionalManager, "", "R-01")
	exec := f.reviewer(t, "exec", models.RoleExecutive, "", "")

	code, body := f.do(t, http.MethodGet, "/api/v1/transactions", rm, nil)
	items, _ := body["items"].([]interface{})
	if code != http.StatusOK || len(items) != 1 {
		t.Fatalf("regional list: %d %v", code, body)
	}

	if code, _ := f.do(t, http.MethodGet, "/api/v1/transactions/T2", rm, nil); code != http.StatusForbidden {
		t.Fatalf("out-of-scope get: expected 403, got %d", code)
	}

	code, body = f.do(t, http.MethodPost, "/api/v1/transactions/T1/decision", exec, map[string]string{"decision": "fraud"})
	if code != http.StatusForbidden {
		t.Fatalf("executive decision: expected 403, got %d %v", code, body)
	}

	code, body = f.do(t, http.MethodPost, "/api/v1/transactions/T1/override", rm, map[string]string{"nextDecision": "valid"})
	if code != http.StatusForbidden {
		t.Fatalf("regional override: expected 403, got %d %v", code, body)
	}

	code, body = f.do(t, http.MethodPost, "/api/v1/transactions/T1/escalate", rm, map[string]string{"reason": "Same card, three stores"})
	if code != http.StatusOK {
		t.Fatalf("escalate: %d %v", code, body)
	}
	tx, _ := body["transaction"].(map[string]interface{})
	if tx["status"] != string(models.StatusEscalated) {
		t.Fatalf("escalated status not returned: %v", tx)
	}

	code, body = f.do(t, http.MethodGet, "/api/v1/transactions/T1/audit", rm, nil)
	entries, _ := body["items"].([]interface{})
	if code != http.StatusOK || len(entries) != 1 {
		t.Fatalf("audit: %d %v", code, body)
	}

	code, body = f.do(t, http.MethodGet, "/api/v1/notifications/unread-count", rm, nil)
	if code != http.StatusOK || body["unread"] != float64(2) {
		t.Fatalf("unread count: %d %v", code, body)
	}

	if code, body = f.do(t, http.MethodPost, "/api/v1/transactions/T1/notes", rm, map[string]string{}); code != http.StatusBadRequest {
		t.Fatalf("empty note: expected 400, got %d %v", code, body)
	}
}

func TestUnknownRoute(t *testing.T) {
	f := newAPIFixture(t)
	if code, body := f.do(t, http.MethodGet, "/api/v1/nope", "", nil); code != http.StatusNotFound || body["error"] != "Endpoint not found" {
		t.Fatalf("unexpected %d %v", code, body)
	}
}
