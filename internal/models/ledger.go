package models

import (
	"time"
)

// IdempotencyRecord stores the outcome of an executed write keyed by the
// caller-supplied idempotency key. Fingerprint is a digest of the canonical
// write specification; a replay with a different fingerprint is a conflict,
// never silently answered with the stale result.
type IdempotencyRecord struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`
	Key         string    `gorm:"column:idempotency_key;size:255;uniqueIndex;not null" json:"key"`
	Fingerprint string    `gorm:"size:64;not null" json:"fingerprint"`
	Result      JSON      `gorm:"type:json" json:"result"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName overrides the table name for IdempotencyRecord
func (IdempotencyRecord) TableName() string {
	return "graph_idempotency_ledger"
}
