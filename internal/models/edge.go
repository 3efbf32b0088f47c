package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Edge is a directed, typed relationship between two assets, deduplicated by
// (from, to, type). Endpoints reference asset row ids; edges are never
// removed implicitly when an asset is soft-deleted; dangling edges are
// filtered at read time through the asset is_deleted flag.
type Edge struct {
	ID          uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	FromAssetID uuid.UUID `gorm:"type:char(36);not null;uniqueIndex:idx_edges_triple,priority:1" json:"from_asset_id"`
	ToAssetID   uuid.UUID `gorm:"type:char(36);not null;uniqueIndex:idx_edges_triple,priority:2;index" json:"to_asset_id"`
	EdgeType    string    `gorm:"size:64;not null;uniqueIndex:idx_edges_triple,priority:3" json:"edge_type"`
	Properties  JSON      `gorm:"type:json" json:"properties,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName overrides the table name for Edge
func (Edge) TableName() string {
	return "graph_edges"
}

func (e *Edge) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// EdgeTypes is the closed relationship vocabulary. Writes carrying any other
// edge_type are rejected whole, with nothing partially written.
var EdgeTypes = map[string]struct{}{
	// structural
	"PARENT_OF": {}, "PART_OF": {}, "INSTANCE_OF": {}, "TEMPLATE_FOR": {},
	"VERSION_OF": {}, "SUPERSEDES": {}, "ALIAS_OF": {},
	// placement
	"BELONGS_TO_PROJECT": {}, "LOCATED_IN_LBS": {}, "COVERS_WBS": {},
	"APPLIES_TO": {}, "MAPPED_TO": {}, "RELATED_TO": {},
	// governance / evidence
	"GOVERNED_BY": {}, "IMPLEMENTS": {}, "EVIDENCES": {}, "VIOLATES": {},
	"SATISFIES": {}, "CONSTRAINED_BY": {},
	// workflow
	"APPROVED_BY": {}, "REVIEWED_BY": {}, "OWNED_BY": {}, "ASSIGNED_TO": {},
	"REPORTED_BY": {}, "RESOLVED_BY": {}, "CLOSES": {},
	// referential
	"REFERENCES": {}, "CITES": {}, "QUOTES": {}, "SUMMARIZES": {},
	"EXTRACTS": {}, "ANNOTATES": {}, "TAGS": {},
	// dependency
	"DEPENDS_ON": {}, "BLOCKED_BY": {}, "REPLACES": {}, "DUPLICATES": {},
	// pipeline
	"CONTEXT_FOR": {}, "INPUT_TO": {}, "OUTPUT_OF": {}, "GENERATED_FROM": {},
}

// ValidEdgeType reports whether t belongs to the closed vocabulary.
func ValidEdgeType(t string) bool {
	_, ok := EdgeTypes[t]
	return ok
}
