package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditEntry is one append-only record of who did what to which asset. The
// core exposes no update or delete on this table.
type AuditEntry struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Action    string    `gorm:"size:120;not null" json:"action"`
	UserID    string    `gorm:"size:64;not null;index" json:"user_id"`
	AssetID   uuid.UUID `gorm:"type:char(36);not null;index:idx_audit_asset" json:"asset_id"`
	Timestamp time.Time `gorm:"not null;index:idx_audit_asset" json:"timestamp"`
	Context   JSON      `gorm:"type:json" json:"context,omitempty"`
}

// TableName overrides the table name for AuditEntry
func (AuditEntry) TableName() string {
	return "graph_audit_entries"
}
