package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldline/fieldgraph/internal/logger"
	"github.com/fieldline/fieldgraph/internal/models"
	"github.com/fieldline/fieldgraph/internal/types"
)

// AuditRecorder is the append-only trail of who did what to which asset.
// The core exposes no update or delete on it.
type AuditRecorder struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAuditRecorder(db *gorm.DB, baseLog *logger.Logger) *AuditRecorder {
	return &AuditRecorder{db: db, log: baseLog.With("store", "audit")}
}

func (r *AuditRecorder) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// Append records one audit entry, inside the caller's transaction when given.
func (r *AuditRecorder) Append(ctx context.Context, tx *gorm.DB, assetID uuid.UUID, audit *AuditContext) error {
	entry := models.AuditEntry{
		Action:    audit.Action,
		UserID:    audit.UserID,
		AssetID:   assetID,
		Timestamp: time.Now().UTC(),
	}
	if len(audit.Detail) > 0 {
		detail, err := models.JSONFrom(audit.Detail)
		if err != nil {
			return types.Validationf("audit detail is not a JSON document: %v", err)
		}
		entry.Context = detail
	}
	if err := r.handle(tx).WithContext(ctx).Create(&entry).Error; err != nil {
		return types.Storage(err)
	}
	return nil
}

// ListForAsset returns the audit trail of one asset, oldest first.
func (r *AuditRecorder) ListForAsset(ctx context.Context, assetID uuid.UUID) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	if err := r.db.WithContext(ctx).
		Where("asset_id = ?", assetID).
		Order("timestamp ASC, id ASC").
		Find(&entries).Error; err != nil {
		return nil, types.Storage(err)
	}
	return entries, nil
}
