package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fieldline/fieldgraph/internal/logger"
	"github.com/fieldline/fieldgraph/internal/models"
	"github.com/fieldline/fieldgraph/internal/types"
)

// AssetFilter narrows List results. Zero values mean "no constraint";
// deleted rows and non-current versions are excluded unless asked for.
type AssetFilter struct {
	ProjectID      string
	OrganizationID string
	Type           string
	Subtype        string
	Status         string
	ApprovalState  string
	IncludeDeleted bool
	AllVersions    bool
	Limit          int
	Offset         int
	OrderBy        string // member of orderColumns, default created_at
	OrderAsc       bool
}

const defaultListLimit = 100
const maxListLimit = 1000

// AssetStore owns the versioned, soft-deletable asset rows.
type AssetStore struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAssetStore(db *gorm.DB, baseLog *logger.Logger) *AssetStore {
	return &AssetStore{db: db, log: baseLog.With("store", "assets")}
}

func (s *AssetStore) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

// lockForUpdate requests a row lock where the dialect has one. SQLite
// serializes writers on its own.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// Get returns the asset row with the given id. Soft-deleted rows are hidden
// unless includeDeleted is set.
func (s *AssetStore) Get(ctx context.Context, id uuid.UUID, includeDeleted bool) (*models.Asset, error) {
	var asset models.Asset
	q := s.db.WithContext(ctx).Where("id = ?", id)
	if !includeDeleted {
		q = q.Where("is_deleted = ?", false)
	}
	if err := q.First(&asset).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, types.NotFoundf("asset %s not found", id)
		}
		return nil, types.Storage(err)
	}
	return &asset, nil
}

// List returns assets matching the filter, ordered by created_at descending
// unless the filter chooses another register ordering.
func (s *AssetStore) List(ctx context.Context, f AssetFilter) ([]models.Asset, error) {
	q := s.db.WithContext(ctx).Model(&models.Asset{})
	q = applyAssetFilter(q, f)

	order, err := orderClause(s.db.Dialector.Name(), f.OrderBy, f.OrderAsc)
	if err != nil {
		return nil, err
	}
	q = q.Order(order)

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

	var assets []models.Asset
	if err := q.Find(&assets).Error; err != nil {
		return nil, types.Storage(err)
	}
	return assets, nil
}

func applyAssetFilter(q *gorm.DB, f AssetFilter) *gorm.DB {
	if f.ProjectID != "" {
		q = q.Where("project_id = ?", f.ProjectID)
	}
	if f.OrganizationID != "" {
		q = q.Where("organization_id = ?", f.OrganizationID)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Subtype != "" {
		q = q.Where("subtype = ?", f.Subtype)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.ApprovalState != "" {
		q = q.Where("approval_state = ?", f.ApprovalState)
	}
	if !f.IncludeDeleted {
		q = q.Where("is_deleted = ?", false)
	}
	if !f.AllVersions {
		q = q.Where("is_current = ?", true)
	}
	return q
}

// orderColumns is the allowlist of register orderings; sla_due lives inside
// the content document (hold/witness registers sort on it).
var orderColumns = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"name":       true,
	"status":     true,
	"version":    true,
	"sla_due":    true,
}

func orderClause(dialect, column string, asc bool) (string, error) {
	if column == "" {
		column = "created_at"
	}
	if !orderColumns[column] {
		return "", types.Validationf("unsupported order column %q", column)
	}
	dir := "DESC"
	if asc {
		dir = "ASC"
	}
	if column == "sla_due" {
		return jsonOrderExpr(dialect, "sla_due") + " " + dir, nil
	}
	return column + " " + dir, nil
}

// jsonOrderExpr extracts a top-level content key for ordering, per dialect.
func jsonOrderExpr(dialect, key string) string {
	switch dialect {
	case "mysql":
		return fmt.Sprintf("JSON_UNQUOTE(JSON_EXTRACT(content, '$.%s'))", key)
	case "postgres":
		return fmt.Sprintf("content->>'%s'", key)
	case "sqlserver", "mssql":
		return fmt.Sprintf("JSON_VALUE(content, '$.%s')", key)
	default:
		return fmt.Sprintf("json_extract(content, '$.%s')", key)
	}
}

// Write applies the asset portion of a write specification inside the
// caller's transaction: update-in-place when input carries an id (content
// merged, version unchanged), insert otherwise. Returns the row and whether
// it was created.
func (s *AssetStore) Write(ctx context.Context, tx *gorm.DB, in *AssetInput, actor string) (*models.Asset, bool, error) {
	if in.ID != "" {
		asset, err := s.update(ctx, s.handle(tx), in, actor)
		return asset, false, err
	}
	asset, err := s.create(ctx, s.handle(tx), in, actor)
	return asset, true, err
}

func (s *AssetStore) update(ctx context.Context, tx *gorm.DB, in *AssetInput, actor string) (*models.Asset, error) {
	id, err := uuid.Parse(in.ID)
	if err != nil {
		return nil, types.Validationf("invalid asset id %q", in.ID)
	}

	var asset models.Asset
	if err := lockForUpdate(tx.WithContext(ctx)).
		Where("id = ? AND is_deleted = ?", id, false).
		First(&asset).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, types.NotFoundf("asset %s not found", id)
		}
		return nil, types.Storage(err)
	}

	if in.ExpectedVersion != nil && asset.Version != in.ExpectedVersion.Uint64() {
		return nil, types.Conflictf("asset %s is at version %d, expected %d",
			id, asset.Version, in.ExpectedVersion.Uint64())
	}

	merged, err := models.MergeContent(asset.Content, in.Content)
	if err != nil {
		return nil, types.Validationf("content is not a JSON document: %v", err)
	}

	updates := map[string]interface{}{
		"content":    merged,
		"updated_at": time.Now().UTC(),
		"updated_by": actor,
	}
	if in.Name != "" {
		updates["name"] = in.Name
	}
	if in.Subtype != "" {
		updates["subtype"] = in.Subtype
	}
	if in.Status != "" {
		updates["status"] = in.Status
	}
	if in.ApprovalState != "" {
		updates["approval_state"] = in.ApprovalState
	}
	if in.ParentAssetID != "" {
		parent, err := uuid.Parse(in.ParentAssetID)
		if err != nil {
			return nil, types.Validationf("invalid parent_asset_id %q", in.ParentAssetID)
		}
		updates["parent_asset_id"] = parent
	}

	if err := tx.WithContext(ctx).Model(&asset).Updates(updates).Error; err != nil {
		return nil, types.Storage(err)
	}

	s.log.Debug("asset updated", "asset_id", asset.ID, "version", asset.Version)
	return &asset, nil
}

func (s *AssetStore) create(ctx context.Context, tx *gorm.DB, in *AssetInput, actor string) (*models.Asset, error) {
	asset := models.Asset{
		ID:             uuid.New(),
		Version:        1,
		Type:           in.Type,
		Subtype:        in.Subtype,
		Name:           in.Name,
		ProjectID:      in.ProjectID,
		OrganizationID: in.OrganizationID,
		Status:         in.Status,
		ApprovalState:  in.ApprovalState,
		IsCurrent:      true,
		CreatedBy:      actor,
		UpdatedBy:      actor,
	}

	if len(in.Content) > 0 {
		content, err := models.JSONFrom(in.Content)
		if err != nil {
			return nil, types.Validationf("content is not a JSON document: %v", err)
		}
		asset.Content = content
	}

	if in.ParentAssetID != "" {
		parent, err := uuid.Parse(in.ParentAssetID)
		if err != nil {
			return nil, types.Validationf("invalid parent_asset_id %q", in.ParentAssetID)
		}
		asset.ParentAssetID = &parent
	}

	if in.AssetUID != "" {
		// Explicit supersession: the new row continues an existing UID as its
		// next version and retires whatever row was current.
		uid, err := uuid.Parse(in.AssetUID)
		if err != nil {
			return nil, types.Validationf("invalid asset_uid %q", in.AssetUID)
		}
		version, err := s.retireCurrent(ctx, tx, uid)
		if err != nil {
			return nil, err
		}
		asset.AssetUID = uid
		asset.Version = version + 1
	} else {
		asset.AssetUID = asset.ID
	}

	if err := tx.WithContext(ctx).Create(&asset).Error; err != nil {
		return nil, types.Storage(err)
	}

	s.log.Debug("asset created", "asset_id", asset.ID, "asset_uid", asset.AssetUID, "type", asset.Type)
	return &asset, nil
}

// retireCurrent locks the rows of an asset UID, clears their is_current
// flags, and reports the highest version seen. The lock plus the clear keeps
// "at most one current row per UID" true under concurrent supersessions.
func (s *AssetStore) retireCurrent(ctx context.Context, tx *gorm.DB, uid uuid.UUID) (uint64, error) {
	var rows []models.Asset
	if err := lockForUpdate(tx.WithContext(ctx)).
		Where("asset_uid = ?", uid).
		Find(&rows).Error; err != nil {
		return 0, types.Storage(err)
	}
	if len(rows) == 0 {
		return 0, types.NotFoundf("asset uid %s not found", uid)
	}

	var maxVersion uint64
	for _, r := range rows {
		if r.Version > maxVersion {
			maxVersion = r.Version
		}
	}

	if err := tx.WithContext(ctx).Model(&models.Asset{}).
		Where("asset_uid = ? AND is_current = ?", uid, true).
		Update("is_current", false).Error; err != nil {
		return 0, types.Storage(err)
	}
	return maxVersion, nil
}

// SoftDelete marks the asset deleted. Idempotent: deleting an already
// deleted asset is a no-op. Rows are never physically removed.
func (s *AssetStore) SoftDelete(ctx context.Context, tx *gorm.DB, id uuid.UUID, actor string) error {
	h := s.handle(tx)

	var asset models.Asset
	if err := lockForUpdate(h.WithContext(ctx)).
		Where("id = ?", id).
		First(&asset).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return types.NotFoundf("asset %s not found", id)
		}
		return types.Storage(err)
	}
	if asset.IsDeleted {
		return nil
	}

	updates := map[string]interface{}{
		"is_deleted": true,
		"updated_at": time.Now().UTC(),
		"updated_by": actor,
	}
	if err := h.WithContext(ctx).Model(&asset).Updates(updates).Error; err != nil {
		return types.Storage(err)
	}

	s.log.Info("asset soft-deleted", "asset_id", id)
	return nil
}

// EndpointVisible reports whether an edge endpoint references an asset that
// exists and is not soft-deleted.
func (s *AssetStore) EndpointVisible(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error) {
	var count int64
	if err := s.handle(tx).WithContext(ctx).Model(&models.Asset{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Count(&count).Error; err != nil {
		return false, types.Storage(err)
	}
	return count > 0, nil
}
