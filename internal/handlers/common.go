package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/fieldline/fieldgraph/internal/services"
)

// parseUUIDParam extracts and validates a uuid path parameter.
func parseUUIDParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	return uuid.Parse(c.Params(name))
}

// parsePagination reads limit/offset query parameters. Zero values mean
// "use the store defaults".
func parsePagination(c *fiber.Ctx) (limit, offset int) {
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			offset = n
		}
	}
	return limit, offset
}

// parseAssetFilter builds an asset listing filter from query parameters.
func parseAssetFilter(c *fiber.Ctx) services.AssetFilter {
	limit, offset := parsePagination(c)

	// Without an explicit order column the register lists newest first.
	orderBy := c.Query("orderBy")
	orderAsc := orderBy != "" && !strings.HasPrefix(orderBy, "-")
	orderBy = strings.TrimPrefix(orderBy, "-")

	return services.AssetFilter{
		ProjectID:      c.Query("projectId"),
		OrganizationID: c.Query("organizationId"),
		Type:           c.Query("type"),
		Subtype:        c.Query("subtype"),
		Status:         c.Query("status"),
		ApprovalState:  c.Query("approvalState"),
		IncludeDeleted: c.QueryBool("includeDeleted"),
		AllVersions:    c.QueryBool("allVersions"),
		Limit:          limit,
		Offset:         offset,
		OrderBy:        orderBy,
		OrderAsc:       orderAsc,
	}
}

// parseEdgeFilter builds an edge listing filter from query parameters.
// Malformed endpoint uuids are reported so a typo does not silently widen
// the query.
func parseEdgeFilter(c *fiber.Ctx) (services.EdgeFilter, error) {
	var f services.EdgeFilter
	f.Limit, f.Offset = parsePagination(c)
	f.EdgeType = c.Query("type")

	if v := c.Query("from"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, err
		}
		f.FromAssetID = &id
	}
	if v := c.Query("to"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, err
		}
		f.ToAssetID = &id
	}

	return f, nil
}

// actorFrom extracts the authenticated user id placed in context by the
// auth middleware. Empty when the route is unauthenticated.
func actorFrom(c *fiber.Ctx) string {
	user, ok := c.Locals("user").(map[string]interface{})
	if !ok {
		return ""
	}
	if id, ok := user["id"].(string); ok {
		return id
	}
	return ""
}
