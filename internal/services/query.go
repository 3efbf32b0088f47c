package services

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/hints"

	"github.com/fieldline/fieldgraph/internal/logger"
	"github.com/fieldline/fieldgraph/internal/models"
	"github.com/fieldline/fieldgraph/internal/types"
)

// QueryGateway is the read-only façade feeding registers, lists and
// dashboards. It composes the store filters over the read pool and filters
// dangling edges through the asset deleted flag.
type QueryGateway struct {
	db     *gorm.DB
	assets *AssetStore
	edges  *EdgeStore
	audit  *AuditRecorder
}

func NewQueryGateway(readDB *gorm.DB, baseLog *logger.Logger) *QueryGateway {
	gatewayLog := baseLog.With("component", "query")
	return &QueryGateway{
		db:     readDB,
		assets: NewAssetStore(readDB, gatewayLog),
		edges:  NewEdgeStore(readDB, gatewayLog),
		audit:  NewAuditRecorder(readDB, gatewayLog),
	}
}

// GetAsset returns one asset row.
func (g *QueryGateway) GetAsset(ctx context.Context, id uuid.UUID, includeDeleted bool) (*models.Asset, error) {
	return g.assets.Get(ctx, id, includeDeleted)
}

// ListAssets returns assets matching the filter. Project-scoped register
// queries are the hot path; steer MySQL's planner at the project index.
func (g *QueryGateway) ListAssets(ctx context.Context, f AssetFilter) ([]models.Asset, error) {
	if f.ProjectID != "" && g.db.Dialector.Name() == "mysql" {
		q := g.db.WithContext(ctx).
			Clauses(hints.UseIndex("idx_assets_project")).
			Model(&models.Asset{})
		q = applyAssetFilter(q, f)

		order, err := orderClause("mysql", f.OrderBy, f.OrderAsc)
		if err != nil {
			return nil, err
		}
		limit := f.Limit
		if limit <= 0 {
			limit = defaultListLimit
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}

		var assets []models.Asset
		if err := q.Order(order).Limit(limit).Offset(f.Offset).Find(&assets).Error; err != nil {
			return nil, types.Storage(err)
		}
		return assets, nil
	}
	return g.assets.List(ctx, f)
}

// ListEdges returns matching edges whose endpoints both still reference
// non-deleted assets. Dangling edges are tolerated in storage and hidden
// here.
func (g *QueryGateway) ListEdges(ctx context.Context, f EdgeFilter) ([]models.Edge, error) {
	q := g.db.WithContext(ctx).Model(&models.Edge{}).
		Joins("JOIN graph_assets fa ON fa.id = graph_edges.from_asset_id AND fa.is_deleted = ?", false).
		Joins("JOIN graph_assets ta ON ta.id = graph_edges.to_asset_id AND ta.is_deleted = ?", false)
	q = applyEdgeFilter(q, f).
		Order("graph_edges.from_asset_id, graph_edges.to_asset_id, graph_edges.edge_type")

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	q = q.Limit(limit)
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var edges []models.Edge
	if err := q.Find(&edges).Error; err != nil {
		return nil, types.Storage(err)
	}
	return edges, nil
}

// AuditTrail returns the audit history of one asset, oldest first.
func (g *QueryGateway) AuditTrail(ctx context.Context, assetID uuid.UUID) ([]models.AuditEntry, error) {
	return g.audit.ListForAsset(ctx, assetID)
}
