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

// EdgeFilter narrows edge listings; zero values mean "no constraint".
type EdgeFilter struct {
	FromAssetID *uuid.UUID
	ToAssetID   *uuid.UUID
	EdgeType    string
	Limit       int
	Offset      int
}

// EdgeStore owns the directed, typed relationship rows between assets.
type EdgeStore struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEdgeStore(db *gorm.DB, baseLog *logger.Logger) *EdgeStore {
	return &EdgeStore{db: db, log: baseLog.With("store", "edges")}
}

func (s *EdgeStore) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

// UpsertEdge inserts or refreshes the edge for (from, to, type). The triple
// is unique; a second upsert updates properties instead of adding a row.
func (s *EdgeStore) UpsertEdge(ctx context.Context, tx *gorm.DB, from, to uuid.UUID, edgeType string, properties map[string]interface{}) (*models.Edge, error) {
	if !models.ValidEdgeType(edgeType) {
		return nil, types.Validationf("unknown edge type %q", edgeType)
	}

	h := s.handle(tx)

	props, err := models.JSONFrom(properties)
	if err != nil {
		return nil, types.Validationf("edge properties are not a JSON document: %v", err)
	}
	if properties == nil {
		props = models.JSON{}
	}

	var edge models.Edge
	err = lockForUpdate(h.WithContext(ctx)).
		Where("from_asset_id = ? AND to_asset_id = ? AND edge_type = ?", from, to, edgeType).
		First(&edge).Error

	switch {
	case err == nil:
		if len(properties) > 0 {
			if err := h.WithContext(ctx).Model(&edge).Update("properties", props).Error; err != nil {
				return nil, types.Storage(err)
			}
			edge.Properties = props
		}
		return &edge, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		edge = models.Edge{
			FromAssetID: from,
			ToAssetID:   to,
			EdgeType:    edgeType,
			Properties:  props,
		}
		if err := h.WithContext(ctx).Create(&edge).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// A concurrent writer inserted the triple first; refresh its
				// properties instead.
				return s.UpsertEdge(ctx, tx, from, to, edgeType, properties)
			}
			return nil, types.Storage(err)
		}
		s.log.Debug("edge created", "from", from, "to", to, "edge_type", edgeType)
		return &edge, nil

	default:
		return nil, types.Storage(err)
	}
}

// ListEdges returns matching edges ordered by (from, to, type) so that a
// restart with the same filter and offset resumes deterministically.
func (s *EdgeStore) ListEdges(ctx context.Context, f EdgeFilter) ([]models.Edge, error) {
	q := applyEdgeFilter(s.db.WithContext(ctx).Model(&models.Edge{}), f).
		Order("from_asset_id, to_asset_id, edge_type")

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

// EachEdge streams matching edges in stable order without loading the whole
// result set, stopping at the first fn error.
func (s *EdgeStore) EachEdge(ctx context.Context, f EdgeFilter, batchSize int, fn func(models.Edge) error) error {
	if batchSize <= 0 {
		batchSize = defaultListLimit
	}
	var batch []models.Edge
	err := applyEdgeFilter(s.db.WithContext(ctx).Model(&models.Edge{}), f).
		Order("from_asset_id, to_asset_id, edge_type").
		FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
			for _, e := range batch {
				if err := fn(e); err != nil {
					return err
				}
			}
			return nil
		}).Error
	if err != nil {
		var ge *types.GraphError
		if errors.As(err, &ge) {
			return err
		}
		return types.Storage(err)
	}
	return nil
}

func applyEdgeFilter(q *gorm.DB, f EdgeFilter) *gorm.DB {
	if f.FromAssetID != nil {
		q = q.Where("from_asset_id = ?", *f.FromAssetID)
	}
	if f.ToAssetID != nil {
		q = q.Where("to_asset_id = ?", *f.ToAssetID)
	}
	if f.EdgeType != "" {
		q = q.Where("edge_type = ?", f.EdgeType)
	}
	return q
}

// DeleteEdge removes the (from, to, type) row. Explicit hard delete only;
// asset deletion never cascades here. Deleting a missing edge is a no-op.
func (s *EdgeStore) DeleteEdge(ctx context.Context, tx *gorm.DB, from, to uuid.UUID, edgeType string) (int64, error) {
	result := s.handle(tx).WithContext(ctx).
		Where("from_asset_id = ? AND to_asset_id = ? AND edge_type = ?", from, to, edgeType).
		Delete(&models.Edge{})
	if result.Error != nil {
		return 0, types.Storage(result.Error)
	}
	if result.RowsAffected > 0 {
		s.log.Info("edge deleted", "from", from, "to", to, "edge_type", edgeType)
	}
	return result.RowsAffected, nil
}
