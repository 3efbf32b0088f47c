package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Approval workflow states layered on assets by feature code. The core stores
// them but does not validate transitions (draft -> pending_review ->
// approved|rejected, rejected -> draft, approved terminal per version).
const (
	ApprovalDraft         = "draft"
	ApprovalPendingReview = "pending_review"
	ApprovalApproved      = "approved"
	ApprovalRejected      = "rejected"
)

// Asset is a versioned node in the graph representing one domain entity
// instance (document, lot, inspection point, plan, ...). ID is row identity
// and changes per version; AssetUID is stable across versions. At most one
// row per AssetUID has IsCurrent = true.
type Asset struct {
	ID             uuid.UUID  `gorm:"type:char(36);primaryKey" json:"id"`
	AssetUID       uuid.UUID  `gorm:"type:char(36);not null;index:idx_assets_uid" json:"asset_uid"`
	Version        uint64     `gorm:"not null;default:1" json:"version"`
	Type           string     `gorm:"size:120;not null;index:idx_assets_type" json:"type"`
	Subtype        string     `gorm:"size:120" json:"subtype,omitempty"`
	Name           string     `gorm:"size:255" json:"name,omitempty"`
	ProjectID      string     `gorm:"size:64;index:idx_assets_project" json:"project_id,omitempty"`
	OrganizationID string     `gorm:"size:64;index" json:"organization_id,omitempty"`
	Content        JSON       `gorm:"type:json" json:"content,omitempty"`
	Status         string     `gorm:"size:64" json:"status,omitempty"`
	ApprovalState  string     `gorm:"size:32;index" json:"approval_state,omitempty"`
	IsCurrent      bool       `gorm:"not null;default:true;index:idx_assets_uid" json:"is_current"`
	IsDeleted      bool       `gorm:"not null;default:false" json:"is_deleted"`
	ParentAssetID  *uuid.UUID `gorm:"type:char(36)" json:"parent_asset_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CreatedBy      string     `gorm:"size:64" json:"created_by,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
	UpdatedBy      string     `gorm:"size:64" json:"updated_by,omitempty"`
}

// TableName overrides the table name for Asset
func (Asset) TableName() string {
	return "graph_assets"
}

// BeforeCreate assigns row identity and stable identity when absent.
func (a *Asset) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.AssetUID == uuid.Nil {
		a.AssetUID = a.ID
	}
	return nil
}
