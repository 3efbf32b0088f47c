package testutil

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldline/fieldgraph/internal/models"
)

// CreateTestAsset inserts a current, non-deleted asset row and returns its id.
func CreateTestAsset(t *testing.T, db *gorm.DB, assetType, name, projectID string) uuid.UUID {
	t.Helper()
	asset := models.Asset{
		Type:      assetType,
		Name:      name,
		ProjectID: projectID,
		Version:   1,
		IsCurrent: true,
	}
	if err := db.Create(&asset).Error; err != nil {
		t.Fatalf("Failed to create asset: %v", err)
	}
	return asset.ID
}

// CreateTestEdge inserts one edge row between two existing assets.
func CreateTestEdge(t *testing.T, db *gorm.DB, from, to uuid.UUID, edgeType string) {
	t.Helper()
	edge := models.Edge{
		FromAssetID: from,
		ToAssetID:   to,
		EdgeType:    edgeType,
	}
	if err := db.Create(&edge).Error; err != nil {
		t.Fatalf("Failed to create edge: %v", err)
	}
}
