package testutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fieldline/fieldgraph/internal/testutil"
)

// TestFullStack drives the built service image end to end: containers up,
// health and metrics reachable, unauthenticated writes rejected, and a write
// accepted through an account acquired from the authorizer.
func TestFullStack(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping full-stack test in short mode")
	}
	if os.Getenv("E2E") == "" {
		t.Skip("Set E2E=1 to run the full-stack suite")
	}

	ctx := context.Background()

	tc, err := testutil.CreateAllTestContainers(t)
	if err != nil {
		t.Fatalf("Failed to start test containers: %v", err)
	}
	defer tc.Terminate(t)

	serviceHost, _ := tc.FieldGraphContainer.Host(ctx)
	servicePort, _ := tc.FieldGraphContainer.MappedPort(ctx, "3000")
	baseURL := fmt.Sprintf("http://%s:%s", serviceHost, servicePort.Port())

	authzHost, _ := tc.AuthorizerContainer.Host(ctx)
	authzPort, _ := tc.AuthorizerContainer.MappedPort(ctx, "8080")
	authzURL := fmt.Sprintf("http://%s:%s", authzHost, authzPort.Port())

	// Wait a bit for everything to stabilize
	time.Sleep(5 * time.Second)

	t.Run("Health", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/api/health")
		if err != nil {
			t.Fatalf("Health request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			t.Fatalf("Health returned %d: %s", resp.StatusCode, body)
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/metrics")
		if err != nil {
			t.Fatalf("Metrics request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Metrics returned %d", resp.StatusCode)
		}
		body, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(body), "http_requests_total") {
			t.Error("Expected request counters in metrics output")
		}
	})

	t.Run("UnauthenticatedWriteRejected", func(t *testing.T) {
		resp := postAsset(t, baseURL, "", map[string]interface{}{
			"asset":           map[string]interface{}{"type": "document"},
			"idempotency_key": "e2e-anon-1",
		})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("Expected 403 without a session, got %d", resp.StatusCode)
		}
	})

	t.Run("AuthorizedWrite", func(t *testing.T) {
		token := testutil.AcquireAccount(t, authzURL,
			fmt.Sprintf("writer-%d@fieldline.test", time.Now().UnixNano()),
			testutil.GeneratePassword(), []string{"reader", "writer"})

		resp := postAsset(t, baseURL, token, map[string]interface{}{
			"asset":           map[string]interface{}{"type": "document", "name": "e2e"},
			"idempotency_key": "e2e-write-1",
		})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			t.Fatalf("Authorized write returned %d: %s", resp.StatusCode, body)
		}

		var result map[string]interface{}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if result["created"] != true {
			t.Errorf("Expected created=true, got %v", result["created"])
		}
	})
}

func postAsset(t *testing.T, baseURL, sessionToken string, spec map[string]interface{}) *http.Response {
	t.Helper()
	body, _ := json.Marshal(spec)
	req, err := http.NewRequest("POST", baseURL+"/api/graph/assets", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sessionToken != "" {
		req.AddCookie(&http.Cookie{Name: "cookie_session", Value: sessionToken})
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	return resp
}
