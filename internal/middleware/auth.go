package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/fieldline/fieldgraph/internal/config"
	"github.com/fieldline/fieldgraph/internal/logger"
	"github.com/fieldline/fieldgraph/internal/services"
	"github.com/fieldline/fieldgraph/internal/types"
)

// AuthorizerInit lazily initializes the Authorizer client on the first
// request, using the request protocol and host for the redirect URL.
func AuthorizerInit(cfg *config.Config, log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !services.IsAuthorizerInitialized() {
			if err := services.InitAuthorizer(cfg, log, c.Protocol(), c.Hostname()); err != nil {
				log.Error("authorizer initialization failed", "error", err)
				return types.Forbidden("Authorization service unavailable")
			}
		}
		return c.Next()
	}
}

// AuthWriter validates that the request may mutate the graph
func AuthWriter() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return authorize(c, []string{"writer"})
	}
}

// AuthReader validates that the request may read the graph
func AuthReader() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return authorize(c, []string{"reader", "writer"})
	}
}

// authorize performs the authorization check
func authorize(c *fiber.Ctx, roles []string) error {
	session := c.Cookies("cookie_session")
	if session == "" {
		return types.Forbidden("Authorizer cookie \"cookie_session\" not found")
	}

	data, err := services.ValidateSession(session, roles)
	if err != nil {
		return types.Forbidden(fmt.Sprintf("Invalid session: %v", err))
	}

	// User id feeds audit entries downstream
	if user, ok := data["user"]; ok {
		c.Locals("user", user)
	}

	return c.Next()
}
