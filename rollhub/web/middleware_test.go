package web

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/hywave/roll-hub/rollhub/database/models"
	"github.com/hywave/roll-hub/rollhub/database/repositories"
	"github.com/hywave/roll-hub/rollhub/web/auth"
)

type fakeAccounts struct {
	repositories.AccountRepository
	byUser map[string]*models.Account
}

func (f *fakeAccounts) GetByUserID(_ context.Context, userID string) (*models.Account, error) {
	account, ok := f.byUser[userID]
	if !ok {
		return nil, repositories.ErrAccountNotFound
	}
	return account, nil
}

func testApp(accounts repositories.AccountRepository) *fiber.App {
	verifier := auth.NewStaticVerifier(map[string]string{
		"user-token":  "alice",
		"admin-token": "root",
	})

	app := fiber.New()
	authed := app.Group("/", RequireAuth(verifier, nil))
	authed.Get("/me", func(c *fiber.Ctx) error {
		identity, _ := CurrentIdentity(c)
		return SendSuccess(c, fiber.Map{"user_id": identity.UserID}, "")
	})
	admin := authed.Group("/admin", RequireAdmin(accounts))
	admin.Get("/ping", func(c *fiber.Ctx) error {
		return SendSuccess(c, nil, "pong")
	})
	return app
}

func TestRequireAuth(t *testing.T) {
	app := testApp(&fakeAccounts{})

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "missing header", header: "", wantStatus: fiber.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", wantStatus: fiber.StatusUnauthorized},
		{name: "unknown token", header: "Bearer nope", wantStatus: fiber.StatusUnauthorized},
		{name: "valid token", header: "Bearer user-token", wantStatus: fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	accounts := &fakeAccounts{byUser: map[string]*models.Account{
		"alice": {UserID: "alice"},
		"root":  {UserID: "root", Admin: true},
	}}
	app := testApp(accounts)

	tests := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{name: "regular user forbidden", token: "user-token", wantStatus: fiber.StatusForbidden},
		{name: "admin allowed", token: "admin-token", wantStatus: fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/admin/ping", nil)
			req.Header.Set(fiber.HeaderAuthorization, "Bearer "+tt.token)
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}
