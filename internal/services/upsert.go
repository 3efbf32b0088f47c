package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldline/fieldgraph/internal/logger"
	"github.com/fieldline/fieldgraph/internal/models"
	"github.com/fieldline/fieldgraph/internal/types"
)

// UpsertCoordinator is the single write entry point every domain feature
// calls. One write specification (an optional asset mutation, zero or more
// edges, an idempotency key) is applied atomically: either the asset write,
// all edge writes, the ledger record and the audit entry become visible
// together, or none of them do.
type UpsertCoordinator struct {
	db     *gorm.DB
	assets *AssetStore
	edges  *EdgeStore
	ledger *IdempotencyLedger
	audit  *AuditRecorder
	log    *logger.Logger
}

func NewUpsertCoordinator(db *gorm.DB, baseLog *logger.Logger) *UpsertCoordinator {
	return &UpsertCoordinator{
		db:     db,
		assets: NewAssetStore(db, baseLog),
		edges:  NewEdgeStore(db, baseLog),
		ledger: NewIdempotencyLedger(db, baseLog),
		audit:  NewAuditRecorder(db, baseLog),
		log:    baseLog.With("component", "upsert"),
	}
}

// Edges exposes the edge store for read paths sharing this pool.
func (c *UpsertCoordinator) Edges() *EdgeStore { return c.edges }

// Upsert applies one write specification. Replaying a previously executed
// idempotency key returns the original result verbatim and touches nothing;
// replaying it with a different payload is a conflict.
func (c *UpsertCoordinator) Upsert(ctx context.Context, spec UpsertSpec) (UpsertResult, error) {
	if err := spec.Validate(); err != nil {
		return UpsertResult{}, types.Validationf("%v", err)
	}

	// Reject the whole write before touching storage if any edge type is
	// outside the closed vocabulary, so nothing is partially written.
	edges, err := resolveEdgeInputs(spec.Edges.Slice())
	if err != nil {
		return UpsertResult{}, err
	}

	fingerprint := spec.Fingerprint()

	result, replayed, err := c.ledger.RecordAndCheck(ctx, spec.IdempotencyKey, fingerprint, func(tx *gorm.DB) (UpsertResult, error) {
		return c.apply(ctx, tx, spec, edges)
	})
	if err != nil {
		return UpsertResult{}, err
	}
	if replayed {
		c.log.Debug("idempotent replay", "idempotency_key", spec.IdempotencyKey, "asset_id", result.ID)
	}
	return result, nil
}

type resolvedEdge struct {
	From       Endpoint
	To         Endpoint
	EdgeType   string
	Properties map[string]interface{}
}

func resolveEdgeInputs(inputs []EdgeInput) ([]resolvedEdge, error) {
	edges := make([]resolvedEdge, 0, len(inputs))
	for _, in := range inputs {
		from, err := parseEndpoint(in.FromAssetID)
		if err != nil {
			return nil, types.Validationf("invalid from_asset_id %q", in.FromAssetID)
		}
		to, err := parseEndpoint(in.ToAssetID)
		if err != nil {
			return nil, types.Validationf("invalid to_asset_id %q", in.ToAssetID)
		}
		edges = append(edges, resolvedEdge{From: from, To: to, EdgeType: in.EdgeType, Properties: in.Properties})
	}
	return edges, nil
}

// apply runs the write inside one transaction: asset first, then edges, with
// the ledger record and audit entry committed alongside.
func (c *UpsertCoordinator) apply(ctx context.Context, tx *gorm.DB, spec UpsertSpec, edges []resolvedEdge) (UpsertResult, error) {
	var result UpsertResult
	actor := ""
	if spec.AuditContext != nil {
		actor = spec.AuditContext.UserID
	}

	if spec.Asset != nil {
		asset, created, err := c.assets.Write(ctx, tx, spec.Asset, actor)
		if err != nil {
			return UpsertResult{}, err
		}
		result = UpsertResult{ID: asset.ID, Version: asset.Version, Created: created}
	}

	for _, e := range edges {
		from := e.From.Resolve(result.ID)
		to := e.To.Resolve(result.ID)
		if err := c.checkEndpoint(ctx, tx, from, result.ID); err != nil {
			return UpsertResult{}, err
		}
		if err := c.checkEndpoint(ctx, tx, to, result.ID); err != nil {
			return UpsertResult{}, err
		}
		if _, err := c.edges.UpsertEdge(ctx, tx, from, to, e.EdgeType, e.Properties); err != nil {
			return UpsertResult{}, err
		}
	}

	if spec.AuditContext != nil {
		assetID := result.ID
		if assetID == uuid.Nil && len(edges) > 0 {
			// Edge-only write: the trail attaches to the first source asset.
			assetID = edges[0].From.ID
		}
		if assetID != uuid.Nil {
			if err := c.audit.Append(ctx, tx, assetID, spec.AuditContext); err != nil {
				return UpsertResult{}, err
			}
		}
	}

	return result, nil
}

// checkEndpoint rejects an edge endpoint that neither references the asset
// written by this spec nor an existing, non-deleted asset.
func (c *UpsertCoordinator) checkEndpoint(ctx context.Context, tx *gorm.DB, id, selfID uuid.UUID) error {
	if id == uuid.Nil {
		return types.NotFoundf("edge endpoint could not be resolved")
	}
	if id == selfID {
		return nil
	}
	visible, err := c.assets.EndpointVisible(ctx, tx, id)
	if err != nil {
		return err
	}
	if !visible {
		return types.NotFoundf("edge endpoint %s does not reference an existing asset", id)
	}
	return nil
}

// SoftDelete marks an asset deleted and records the action, atomically.
// Edges are left in place; reads filter them through the deleted flag.
func (c *UpsertCoordinator) SoftDelete(ctx context.Context, id uuid.UUID, audit *AuditContext) error {
	actor := ""
	if audit != nil {
		actor = audit.UserID
	}
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := c.assets.SoftDelete(ctx, tx, id, actor); err != nil {
			return err
		}
		if audit != nil {
			return c.audit.Append(ctx, tx, id, audit)
		}
		return nil
	})
	if err != nil {
		var ge *types.GraphError
		if errors.As(err, &ge) {
			return err
		}
		return types.Storage(err)
	}
	return nil
}

// DeleteEdge removes one relationship row outright.
func (c *UpsertCoordinator) DeleteEdge(ctx context.Context, from, to uuid.UUID, edgeType string) (int64, error) {
	if !models.ValidEdgeType(edgeType) {
		return 0, types.Validationf("unknown edge type %q", edgeType)
	}
	return c.edges.DeleteEdge(ctx, nil, from, to, edgeType)
}
