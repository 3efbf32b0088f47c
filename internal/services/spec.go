package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"

	"github.com/fieldline/fieldgraph/internal/models"
	"github.com/fieldline/fieldgraph/internal/types"
)

// AssetInput is the asset portion of a write specification. A present ID
// means update-in-place (content merged, version unchanged); an absent ID
// with a Type means create. AssetUID on a create marks an explicit
// supersession: the new row becomes current and prior rows of that UID are
// retired.
type AssetInput struct {
	ID              string                 `json:"id,omitempty"`
	AssetUID        string                 `json:"asset_uid,omitempty"`
	Type            string                 `json:"type,omitempty"`
	Subtype         string                 `json:"subtype,omitempty"`
	Name            string                 `json:"name,omitempty"`
	ProjectID       string                 `json:"project_id,omitempty"`
	OrganizationID  string                 `json:"organization_id,omitempty"`
	Content         map[string]interface{} `json:"content,omitempty"`
	Status          string                 `json:"status,omitempty"`
	ApprovalState   string                 `json:"approval_state,omitempty"`
	ParentAssetID   string                 `json:"parent_asset_id,omitempty"`
	ExpectedVersion *types.FlexUint64      `json:"expected_version,omitempty"`
}

// Validate implements validation.Validatable.
func (a AssetInput) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.ID, is.UUID),
		validation.Field(&a.AssetUID, is.UUID),
		validation.Field(&a.ParentAssetID, is.UUID),
		validation.Field(&a.Type,
			validation.Required.When(a.ID == "").Error("type is required when creating an asset")),
	)
}

// EdgeInput is one directed relationship in a write specification. An empty
// endpoint means "the asset written by this same spec".
type EdgeInput struct {
	FromAssetID string                 `json:"from_asset_id"`
	ToAssetID   string                 `json:"to_asset_id"`
	EdgeType    string                 `json:"edge_type"`
	Properties  map[string]interface{} `json:"properties,omitempty"`
}

// Validate implements validation.Validatable.
func (e EdgeInput) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.FromAssetID, is.UUID),
		validation.Field(&e.ToAssetID, is.UUID),
		validation.Field(&e.EdgeType, validation.Required, validation.By(edgeTypeRule)),
	)
}

func edgeTypeRule(value interface{}) error {
	t, _ := value.(string)
	if !models.ValidEdgeType(t) {
		return fmt.Errorf("unknown edge type %q", t)
	}
	return nil
}

// AuditContext names the actor and action recorded alongside a write.
type AuditContext struct {
	Action string                 `json:"action"`
	UserID string                 `json:"user_id"`
	Detail map[string]interface{} `json:"detail,omitempty"`
}

// Validate implements validation.Validatable.
func (a AuditContext) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Action, validation.Required),
		validation.Field(&a.UserID, validation.Required),
	)
}

// UpsertSpec is the single write specification every domain feature submits:
// one optional asset mutation, zero or more edges, a required idempotency
// key, and optional audit context.
type UpsertSpec struct {
	Asset          *AssetInput               `json:"asset,omitempty"`
	Edges          types.FlexList[EdgeInput] `json:"edges,omitempty"`
	IdempotencyKey string                    `json:"idempotency_key"`
	AuditContext   *AuditContext             `json:"audit_context,omitempty"`
}

// Validate implements validation.Validatable.
func (s UpsertSpec) Validate() error {
	if err := validation.ValidateStruct(&s,
		validation.Field(&s.IdempotencyKey, validation.Required, validation.Length(1, 255)),
		validation.Field(&s.Asset),
		validation.Field(&s.Edges),
		validation.Field(&s.AuditContext),
	); err != nil {
		return err
	}
	if s.Asset == nil {
		if len(s.Edges) == 0 {
			return fmt.Errorf("a write specification needs an asset, edges, or both")
		}
		for _, e := range s.Edges {
			if e.FromAssetID == "" || e.ToAssetID == "" {
				return fmt.Errorf("self-referencing edge endpoints need an asset in the same spec")
			}
		}
	}
	return nil
}

// Fingerprint digests the canonical form of the spec. Replaying an
// idempotency key with a different fingerprint is a conflict.
func (s UpsertSpec) Fingerprint() string {
	raw, err := json.Marshal(s)
	if err != nil {
		// Marshal of map[string]interface{} built from decoded JSON cannot
		// fail; keep the write going with a degenerate fingerprint if it does.
		raw = []byte(s.IdempotencyKey)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// UpsertResult is what a write returns and what the ledger replays.
type UpsertResult struct {
	ID      uuid.UUID `json:"id"`
	Version uint64    `json:"version"`
	Created bool      `json:"created"`
}

// Endpoint is one resolved side of an edge: either an explicit asset row id
// or the asset written by the same spec.
type Endpoint struct {
	ID   uuid.UUID
	Self bool
}

func parseEndpoint(s string) (Endpoint, error) {
	if s == "" {
		return Endpoint{Self: true}, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return Endpoint{}, err
	}
	return Endpoint{ID: id}, nil
}

// Resolve returns the endpoint's asset id, substituting the asset written by
// this spec for the self sentinel.
func (e Endpoint) Resolve(self uuid.UUID) uuid.UUID {
	if e.Self {
		return self
	}
	return e.ID
}
