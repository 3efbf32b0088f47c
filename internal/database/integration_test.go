package database_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fieldline/fieldgraph/internal/config"
	"github.com/fieldline/fieldgraph/internal/database"
	"github.com/fieldline/fieldgraph/internal/logger"
	"github.com/fieldline/fieldgraph/internal/services"
)

// TestWithMariaDB runs the write path against a real MariaDB container.
func TestWithMariaDB(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	image := os.Getenv("DB_IMAGE")
	if image == "" {
		image = "mariadb:11"
	}

	mariadbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{"3306/tcp"},
			Env: map[string]string{
				"MYSQL_ROOT_PASSWORD": "rootpass",
				"MYSQL_DATABASE":      "testdb",
				"MYSQL_USER":          "testuser",
				"MYSQL_PASSWORD":      "testpass",
			},
			WaitingFor: wait.ForLog("ready for connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start MariaDB container: %v", err)
	}
	defer func() {
		if err := mariadbContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate MariaDB container: %v", err)
		}
	}()

	host, err := mariadbContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := mariadbContainer.MappedPort(ctx, "3306")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.Config{
		DBType:                "mariadb",
		DBHost:                host,
		DBPort:                port.Port(),
		DBDatabase:            "testdb",
		DBAppUser:             "testuser",
		DBAppPassword:         "testpass",
		DBAppConnectionLimit:  5,
		DBReadUser:            "testuser",
		DBReadPassword:        "testpass",
		DBReadConnectionLimit: 5,
	}

	db, err := database.Connect(cfg)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close(db)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	coord := services.NewUpsertCoordinator(db, logger.NewNop())

	created, err := coord.Upsert(ctx, services.UpsertSpec{
		Asset: &services.AssetInput{
			Type:      "document",
			Name:      "Integration Doc",
			ProjectID: "p1",
			Content:   map[string]interface{}{"k": "v"},
		},
		IdempotencyKey: "it-1",
		AuditContext:   &services.AuditContext{Action: "document.create", UserID: "u1"},
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if created.Version != 1 || !created.Created {
		t.Errorf("Unexpected create result %+v", created)
	}

	// Replay over a row-locking engine
	replayed, err := coord.Upsert(ctx, services.UpsertSpec{
		Asset: &services.AssetInput{
			Type:      "document",
			Name:      "Integration Doc",
			ProjectID: "p1",
			Content:   map[string]interface{}{"k": "v"},
		},
		IdempotencyKey: "it-1",
		AuditContext:   &services.AuditContext{Action: "document.create", UserID: "u1"},
	})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if replayed != created {
		t.Errorf("Replay %+v differs from original %+v", replayed, created)
	}

	gateway := services.NewQueryGateway(db, logger.NewNop())
	assets, err := gateway.ListAssets(ctx, services.AssetFilter{ProjectID: "p1"})
	if err != nil {
		t.Fatalf("ListAssets failed: %v", err)
	}
	if len(assets) != 1 {
		t.Errorf("Expected 1 asset, got %d", len(assets))
	}
}
