package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/fieldline/fieldgraph/internal/database"
	"github.com/fieldline/fieldgraph/internal/handlers"
	"github.com/fieldline/fieldgraph/internal/logger"
	"github.com/fieldline/fieldgraph/internal/services"
	"github.com/fieldline/fieldgraph/internal/testutil"
)

func newTestHandler(t *testing.T) (*handlers.GraphHandler, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return &handlers.GraphHandler{
		Coordinator: services.NewUpsertCoordinator(db, logger.NewNop()),
		Gateway:     services.NewQueryGateway(db, logger.NewNop()),
	}, db
}

func registerGraphRoutes(app *fiber.App, handler *handlers.GraphHandler) {
	app.Get("/api/graph/assets/:id/audit", handler.GetAuditTrail)
	app.Get("/api/graph/assets/:id", handler.GetAsset)
	app.Get("/api/graph/assets", handler.ListAssets)
	app.Post("/api/graph/assets", handler.UpsertAsset)
	app.Delete("/api/graph/assets/:id", handler.DeleteAsset)
	app.Get("/api/graph/edges", handler.ListEdges)
	app.Delete("/api/graph/edges", handler.DeleteEdge)
}

// setupTestApp wires the graph routes over an in-memory SQLite database,
// without the auth middleware.
func setupTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	handler, db := newTestHandler(t)
	app := fiber.New()
	registerGraphRoutes(app, handler)
	return app, db
}

// setupSessionApp wires the same routes behind a stub that plants the session
// user the auth middleware would, so handlers see an authenticated caller.
func setupSessionApp(t *testing.T, userID string) (*fiber.App, *gorm.DB) {
	t.Helper()
	handler, db := newTestHandler(t)
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", map[string]interface{}{"id": userID})
		return c.Next()
	})
	registerGraphRoutes(app, handler)
	return app, db
}

func postUpsert(t *testing.T, app *fiber.App, spec map[string]interface{}) map[string]interface{} {
	t.Helper()
	body, _ := json.Marshal(spec)
	req := httptest.NewRequest("POST", "/api/graph/assets", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}

	var result map[string]interface{}
	testutil.ParseJSON(t, resp, &result)
	if resp.StatusCode != 200 {
		t.Fatalf("Upsert returned %d: %v", resp.StatusCode, result)
	}
	return result
}

// TestUpsertAssetEndpoint tests POST /api/graph/assets
func TestUpsertAssetEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	result := postUpsert(t, app, map[string]interface{}{
		"asset": map[string]interface{}{
			"type":       "document",
			"name":       "ITP Section 4",
			"project_id": "p1",
			"content":    map[string]interface{}{"discipline": "structural"},
		},
		"idempotency_key": "h-create-1",
		"audit_context":   map[string]interface{}{"action": "document.create", "user_id": "u1"},
	})

	if result["ok"] != true {
		t.Error("Expected ok=true in response")
	}
	if result["created"] != true {
		t.Error("Expected created=true in response")
	}
	if result["version"] != float64(1) {
		t.Errorf("Expected version 1, got %v", result["version"])
	}
	if result["id"] == nil || result["id"] == "" {
		t.Error("Expected id in response")
	}
}

// TestUpsertReplayEndpoint verifies the same key answers identically twice.
func TestUpsertReplayEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	spec := map[string]interface{}{
		"asset":           map[string]interface{}{"type": "document", "name": "one"},
		"idempotency_key": "h-replay-1",
	}
	first := postUpsert(t, app, spec)
	second := postUpsert(t, app, spec)

	if first["id"] != second["id"] {
		t.Errorf("Replay returned a different id: %v vs %v", first["id"], second["id"])
	}
	if first["version"] != second["version"] {
		t.Errorf("Replay returned a different version: %v vs %v", first["version"], second["version"])
	}
}

// TestUpsertConflictEndpoint verifies a reused key with a new payload is 409.
func TestUpsertConflictEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	postUpsert(t, app, map[string]interface{}{
		"asset":           map[string]interface{}{"type": "document", "name": "one"},
		"idempotency_key": "h-conflict-1",
	})

	body, _ := json.Marshal(map[string]interface{}{
		"asset":           map[string]interface{}{"type": "document", "name": "two"},
		"idempotency_key": "h-conflict-1",
	})
	req := httptest.NewRequest("POST", "/api/graph/assets", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	testutil.AssertStatus(t, resp, 409)

	var result map[string]interface{}
	testutil.ParseJSON(t, resp, &result)
	if result["type"] != "conflict" {
		t.Errorf("Expected error type conflict, got %v", result["type"])
	}
}

// TestUpsertValidationEndpoint verifies bad input is 400 with the validation
// error type.
func TestUpsertValidationEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	body, _ := json.Marshal(map[string]interface{}{
		"asset": map[string]interface{}{"type": "document"},
		// no idempotency_key
	})
	req := httptest.NewRequest("POST", "/api/graph/assets", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	testutil.AssertStatus(t, resp, 400)

	var result map[string]interface{}
	testutil.ParseJSON(t, resp, &result)
	if result["type"] != "validation" {
		t.Errorf("Expected error type validation, got %v", result["type"])
	}
}

// TestUpsertSessionWithoutAuditContext verifies an authenticated upsert that
// omits the optional audit context succeeds and records no trail entry.
func TestUpsertSessionWithoutAuditContext(t *testing.T) {
	app, _ := setupSessionApp(t, "user-7")

	created := postUpsert(t, app, map[string]interface{}{
		"asset":           map[string]interface{}{"type": "document", "name": "no trail"},
		"idempotency_key": "h-session-1",
	})
	id := created["id"].(string)

	req := httptest.NewRequest("GET", "/api/graph/assets/"+id+"/audit", nil)
	resp, _ := app.Test(req)
	testutil.AssertStatus(t, resp, 204)
}

// TestUpsertSessionOverridesAuditUser verifies the session user replaces
// whatever user id the body claims.
func TestUpsertSessionOverridesAuditUser(t *testing.T) {
	app, _ := setupSessionApp(t, "user-7")

	created := postUpsert(t, app, map[string]interface{}{
		"asset":           map[string]interface{}{"type": "document"},
		"idempotency_key": "h-session-2",
		"audit_context":   map[string]interface{}{"action": "document.create", "user_id": "imposter"},
	})
	id := created["id"].(string)

	req := httptest.NewRequest("GET", "/api/graph/assets/"+id+"/audit", nil)
	resp, _ := app.Test(req)
	testutil.AssertStatus(t, resp, 200)

	var entries []map[string]interface{}
	testutil.ParseJSON(t, resp, &entries)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 audit entry, got %d", len(entries))
	}
	if entries[0]["user_id"] != "user-7" {
		t.Errorf("Expected session user in audit entry, got %v", entries[0]["user_id"])
	}
}

// TestGetAssetEndpoint tests GET /api/graph/assets/:id
func TestGetAssetEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	created := postUpsert(t, app, map[string]interface{}{
		"asset":           map[string]interface{}{"type": "document", "name": "lookup me"},
		"idempotency_key": "h-get-1",
	})
	id := created["id"].(string)

	req := httptest.NewRequest("GET", "/api/graph/assets/"+id, nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	testutil.AssertStatus(t, resp, 200)

	var asset map[string]interface{}
	testutil.ParseJSON(t, resp, &asset)
	if asset["name"] != "lookup me" {
		t.Errorf("Expected asset name, got %v", asset["name"])
	}

	// Unknown id is 404
	req = httptest.NewRequest("GET", "/api/graph/assets/00000000-0000-0000-0000-000000000001", nil)
	resp, _ = app.Test(req)
	testutil.AssertStatus(t, resp, 404)

	// Malformed id is 400
	req = httptest.NewRequest("GET", "/api/graph/assets/not-a-uuid", nil)
	resp, _ = app.Test(req)
	testutil.AssertStatus(t, resp, 400)
}

// TestListAssetsEndpoint tests GET /api/graph/assets with filters.
func TestListAssetsEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	postUpsert(t, app, map[string]interface{}{
		"asset":           map[string]interface{}{"type": "document", "project_id": "p1"},
		"idempotency_key": "h-list-1",
	})
	postUpsert(t, app, map[string]interface{}{
		"asset":           map[string]interface{}{"type": "ncr", "project_id": "p2"},
		"idempotency_key": "h-list-2",
	})

	req := httptest.NewRequest("GET", "/api/graph/assets?projectId=p1", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	testutil.AssertStatus(t, resp, 200)

	var assets []map[string]interface{}
	testutil.ParseJSON(t, resp, &assets)
	if len(assets) != 1 {
		t.Errorf("Expected 1 asset for p1, got %d", len(assets))
	}

	// A filter matching nothing is 204
	req = httptest.NewRequest("GET", "/api/graph/assets?projectId=p404", nil)
	resp, _ = app.Test(req)
	testutil.AssertStatus(t, resp, 204)
	testutil.AssertNoContent(t, resp)
}

// TestListAssetsDefaultOrderNewestFirst verifies the register lists by
// created_at descending when no order column is requested.
func TestListAssetsDefaultOrderNewestFirst(t *testing.T) {
	app, db := setupTestApp(t)

	old := postUpsert(t, app, map[string]interface{}{
		"asset":           map[string]interface{}{"type": "document", "name": "old"},
		"idempotency_key": "h-order-1",
	})["id"].(string)
	fresh := postUpsert(t, app, map[string]interface{}{
		"asset":           map[string]interface{}{"type": "document", "name": "fresh"},
		"idempotency_key": "h-order-2",
	})["id"].(string)

	if err := db.Exec("UPDATE graph_assets SET created_at = ? WHERE id = ?",
		time.Now().Add(-time.Hour), old).Error; err != nil {
		t.Fatalf("Failed to backdate asset: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/graph/assets", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	testutil.AssertStatus(t, resp, 200)

	var assets []map[string]interface{}
	testutil.ParseJSON(t, resp, &assets)
	if len(assets) != 2 {
		t.Fatalf("Expected 2 assets, got %d", len(assets))
	}
	if assets[0]["id"] != fresh {
		t.Errorf("Expected newest asset first, got %v", assets[0]["id"])
	}

	// An explicit ascending order flips it
	req = httptest.NewRequest("GET", "/api/graph/assets?orderBy=created_at", nil)
	resp, _ = app.Test(req)
	testutil.ParseJSON(t, resp, &assets)
	if assets[0]["id"] != old {
		t.Errorf("Expected oldest asset first when ascending, got %v", assets[0]["id"])
	}
}

// TestDeleteAssetEndpoint tests DELETE /api/graph/assets/:id
func TestDeleteAssetEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	created := postUpsert(t, app, map[string]interface{}{
		"asset":           map[string]interface{}{"type": "document"},
		"idempotency_key": "h-del-1",
	})
	id := created["id"].(string)

	body, _ := json.Marshal(map[string]interface{}{"action": "document.delete", "user_id": "u1"})
	req := httptest.NewRequest("DELETE", "/api/graph/assets/"+id, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	testutil.AssertStatus(t, resp, 200)

	// The asset no longer resolves
	req = httptest.NewRequest("GET", "/api/graph/assets/"+id, nil)
	resp, _ = app.Test(req)
	testutil.AssertStatus(t, resp, 404)

	// But remains reachable for admin reads
	req = httptest.NewRequest("GET", "/api/graph/assets/"+id+"?includeDeleted=true", nil)
	resp, _ = app.Test(req)
	testutil.AssertStatus(t, resp, 200)
}

// TestEdgeEndpoints tests GET and DELETE /api/graph/edges
func TestEdgeEndpoints(t *testing.T) {
	app, _ := setupTestApp(t)

	a := postUpsert(t, app, map[string]interface{}{
		"asset":           map[string]interface{}{"type": "document"},
		"idempotency_key": "h-edge-a",
	})["id"].(string)
	b := postUpsert(t, app, map[string]interface{}{
		"asset":           map[string]interface{}{"type": "document"},
		"idempotency_key": "h-edge-b",
	})["id"].(string)

	postUpsert(t, app, map[string]interface{}{
		"edges": []map[string]interface{}{
			{"from_asset_id": a, "to_asset_id": b, "edge_type": "REFERENCES"},
		},
		"idempotency_key": "h-edge-link",
	})

	req := httptest.NewRequest("GET", "/api/graph/edges?from="+a, nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	testutil.AssertStatus(t, resp, 200)

	var edges []map[string]interface{}
	testutil.ParseJSON(t, resp, &edges)
	if len(edges) != 1 {
		t.Fatalf("Expected 1 edge, got %d", len(edges))
	}
	if edges[0]["edge_type"] != "REFERENCES" {
		t.Errorf("Unexpected edge type %v", edges[0]["edge_type"])
	}

	// Delete it, then deletion of the missing edge is still 200
	for _, wantAffected := range []float64{1, 0} {
		req = httptest.NewRequest("DELETE", "/api/graph/edges?from="+a+"&to="+b+"&type=REFERENCES", nil)
		resp, _ = app.Test(req)
		testutil.AssertStatus(t, resp, 200)

		var result map[string]interface{}
		testutil.ParseJSON(t, resp, &result)
		if result["affectedRows"] != wantAffected {
			t.Errorf("Expected affectedRows %v, got %v", wantAffected, result["affectedRows"])
		}
	}

	// Missing query parameters are 400
	req = httptest.NewRequest("DELETE", "/api/graph/edges?from="+a, nil)
	resp, _ = app.Test(req)
	testutil.AssertStatus(t, resp, 400)
}

// TestAuditTrailEndpoint tests GET /api/graph/assets/:id/audit
func TestAuditTrailEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	created := postUpsert(t, app, map[string]interface{}{
		"asset":           map[string]interface{}{"type": "document"},
		"idempotency_key": "h-audit-1",
		"audit_context":   map[string]interface{}{"action": "document.create", "user_id": "u1"},
	})
	id := created["id"].(string)

	req := httptest.NewRequest("GET", "/api/graph/assets/"+id+"/audit", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	testutil.AssertStatus(t, resp, 200)

	var entries []map[string]interface{}
	testutil.ParseJSON(t, resp, &entries)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 audit entry, got %d", len(entries))
	}
	if entries[0]["action"] != "document.create" {
		t.Errorf("Unexpected audit action %v", entries[0]["action"])
	}
	if entries[0]["user_id"] != "u1" {
		t.Errorf("Unexpected audit user %v", entries[0]["user_id"])
	}
}
