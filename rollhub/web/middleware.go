package web

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hywave/roll-hub/rollhub/batch"
	"github.com/hywave/roll-hub/rollhub/database/repositories"
	"github.com/hywave/roll-hub/rollhub/web/auth"
)

const identityKey = "identity"

// RequireAuth verifies the bearer credential and stores the resolved identity
// in the request context. A batcher, when given, absorbs the presence
// heartbeat so it never costs a synchronous write.
func RequireAuth(verifier auth.Verifier, presence *batch.Batcher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return SendUnauthorized(c, "Authentication required")
		}

		identity, err := verifier.Verify(c.UserContext(), token)
		if err != nil {
			slog.Debug("Credential rejected", slog.String("error", err.Error()))
			return SendUnauthorized(c, "Invalid credential")
		}

		c.Locals(identityKey, identity)

		if presence != nil {
			presence.QueueUpdate(identity.UserID, map[string]any{
				"last_seen_at": time.Now(),
			})
		}

		return c.Next()
	}
}

// RequireAdmin ensures the authenticated identity maps to an admin account.
// Must run after RequireAuth.
func RequireAdmin(accounts repositories.AccountRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := CurrentIdentity(c)
		if !ok {
			return SendForbidden(c, "Access denied")
		}

		account, err := accounts.GetByUserID(c.UserContext(), identity.UserID)
		if err != nil {
			slog.Warn("Admin check failed",
				slog.String("user_id", identity.UserID),
				slog.Any("error", err))
			return SendForbidden(c, "Access denied")
		}
		if !account.Admin {
			return SendForbidden(c, "Admin access required")
		}

		return c.Next()
	}
}

// CurrentIdentity extracts the verified identity from the request context.
func CurrentIdentity(c *fiber.Ctx) (auth.Identity, bool) {
	identity, ok := c.Locals(identityKey).(auth.Identity)
	return identity, ok
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
