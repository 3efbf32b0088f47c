package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fieldline/fieldgraph/internal/services"
	"github.com/fieldline/fieldgraph/internal/types"
	"github.com/fieldline/fieldgraph/internal/utils"
)

// GraphHandler handles asset graph routes
type GraphHandler struct {
	Coordinator *services.UpsertCoordinator
	Gateway     *services.QueryGateway
}

// UpsertAsset handles POST /api/graph/assets
// @Summary Upsert an asset and its edges
// @Description Idempotently create or update an asset with relationship edges in a single transaction
// @Tags Graph
// @Accept json
// @Produce json
// @Param body body services.UpsertSpec true "Upsert specification"
// @Success 200 {object} utils.MutationResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /graph/assets [post]
func (h *GraphHandler) UpsertAsset(c *fiber.Ctx) error {
	var spec services.UpsertSpec
	if err := c.BodyParser(&spec); err != nil {
		return utils.ErrorResponse(c, "Invalid input", fiber.StatusBadRequest, types.KindValidation)
	}

	// The session user wins over whatever the body claims. A spec without
	// audit context stays without one; the trail is opt-in per write.
	if actor := actorFrom(c); actor != "" && spec.AuditContext != nil {
		spec.AuditContext.UserID = actor
	}

	result, err := h.Coordinator.Upsert(c.UserContext(), spec)
	if err != nil {
		return utils.GraphErrorResponse(c, err)
	}

	return utils.MutationSuccessResponse(c, result.ID.String(), result.Version, result.Created)
}

// GetAsset handles GET /api/graph/assets/:id
// @Summary Get an asset
// @Description Get the current version of an asset by id
// @Tags Graph
// @Accept json
// @Produce json
// @Param id path string true "Asset ID"
// @Param includeDeleted query bool false "Include soft-deleted assets"
// @Success 200 {object} models.Asset
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /graph/assets/{id} [get]
func (h *GraphHandler) GetAsset(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, "Invalid asset id", fiber.StatusBadRequest, types.KindValidation)
	}

	asset, err := h.Gateway.GetAsset(c.UserContext(), id, c.QueryBool("includeDeleted"))
	if err != nil {
		return utils.GraphErrorResponse(c, err)
	}

	return utils.SuccessResponse(c, asset, fiber.StatusOK)
}

// ListAssets handles GET /api/graph/assets
// @Summary List assets
// @Description List current assets filtered by project, organization, type, status or approval state
// @Tags Graph
// @Accept json
// @Produce json
// @Param projectId query string false "Project ID"
// @Param organizationId query string false "Organization ID"
// @Param type query string false "Asset type"
// @Param subtype query string false "Asset subtype"
// @Param status query string false "Lifecycle status"
// @Param approvalState query string false "Approval state"
// @Param includeDeleted query bool false "Include soft-deleted assets"
// @Param allVersions query bool false "Include superseded versions"
// @Param orderBy query string false "Order column, prefix with - for descending"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {array} models.Asset
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /graph/assets [get]
func (h *GraphHandler) ListAssets(c *fiber.Ctx) error {
	assets, err := h.Gateway.ListAssets(c.UserContext(), parseAssetFilter(c))
	if err != nil {
		return utils.GraphErrorResponse(c, err)
	}

	if len(assets) == 0 {
		return c.SendStatus(fiber.StatusNoContent)
	}

	return utils.SuccessResponse(c, assets, fiber.StatusOK)
}

// DeleteAsset handles DELETE /api/graph/assets/:id
// @Summary Soft-delete an asset
// @Description Mark an asset deleted; its edges remain but stop resolving in queries
// @Tags Graph
// @Accept json
// @Produce json
// @Param id path string true "Asset ID"
// @Param body body services.AuditContext true "Audit context"
// @Success 200 {object} utils.DeletionResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /graph/assets/{id} [delete]
func (h *GraphHandler) DeleteAsset(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, "Invalid asset id", fiber.StatusBadRequest, types.KindValidation)
	}

	var audit services.AuditContext
	if err := c.BodyParser(&audit); err != nil {
		return utils.ErrorResponse(c, "Invalid input", fiber.StatusBadRequest, types.KindValidation)
	}
	if actor := actorFrom(c); actor != "" {
		audit.UserID = actor
	}

	if err := h.Coordinator.SoftDelete(c.UserContext(), id, &audit); err != nil {
		return utils.GraphErrorResponse(c, err)
	}

	return utils.DeletionSuccessResponse(c, 1)
}

// ListEdges handles GET /api/graph/edges
// @Summary List edges
// @Description List edges filtered by endpoint or type; edges touching deleted assets are hidden
// @Tags Graph
// @Accept json
// @Produce json
// @Param from query string false "From asset ID"
// @Param to query string false "To asset ID"
// @Param type query string false "Edge type"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {array} models.Edge
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /graph/edges [get]
func (h *GraphHandler) ListEdges(c *fiber.Ctx) error {
	filter, err := parseEdgeFilter(c)
	if err != nil {
		return utils.ErrorResponse(c, "Invalid endpoint id", fiber.StatusBadRequest, types.KindValidation)
	}

	edges, err := h.Gateway.ListEdges(c.UserContext(), filter)
	if err != nil {
		return utils.GraphErrorResponse(c, err)
	}

	if len(edges) == 0 {
		return c.SendStatus(fiber.StatusNoContent)
	}

	return utils.SuccessResponse(c, edges, fiber.StatusOK)
}

// DeleteEdge handles DELETE /api/graph/edges
// @Summary Delete an edge
// @Description Remove the edge identified by (from, to, type); a no-op when the edge is absent
// @Tags Graph
// @Accept json
// @Produce json
// @Param from query string true "From asset ID"
// @Param to query string true "To asset ID"
// @Param type query string true "Edge type"
// @Success 200 {object} utils.DeletionResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /graph/edges [delete]
func (h *GraphHandler) DeleteEdge(c *fiber.Ctx) error {
	filter, err := parseEdgeFilter(c)
	if err != nil || filter.FromAssetID == nil || filter.ToAssetID == nil || filter.EdgeType == "" {
		return utils.ErrorResponse(c, "from, to and type are required", fiber.StatusBadRequest, types.KindValidation)
	}

	affected, err := h.Coordinator.DeleteEdge(c.UserContext(), *filter.FromAssetID, *filter.ToAssetID, filter.EdgeType)
	if err != nil {
		return utils.GraphErrorResponse(c, err)
	}

	return utils.DeletionSuccessResponse(c, affected)
}

// GetAuditTrail handles GET /api/graph/assets/:id/audit
// @Summary Get the audit trail of an asset
// @Description List audit entries for an asset in chronological order
// @Tags Graph
// @Accept json
// @Produce json
// @Param id path string true "Asset ID"
// @Success 200 {array} models.AuditEntry
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /graph/assets/{id}/audit [get]
func (h *GraphHandler) GetAuditTrail(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, "Invalid asset id", fiber.StatusBadRequest, types.KindValidation)
	}

	entries, err := h.Gateway.AuditTrail(c.UserContext(), id)
	if err != nil {
		return utils.GraphErrorResponse(c, err)
	}

	if len(entries) == 0 {
		return c.SendStatus(fiber.StatusNoContent)
	}

	return utils.SuccessResponse(c, entries, fiber.StatusOK)
}
