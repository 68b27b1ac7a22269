package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wisbric/todoapi/internal/db"
	"github.com/wisbric/todoapi/pkg/todo"
	"github.com/wisbric/todoapi/pkg/user"
)

// DemoUsername is the local account the seed creates. It is left unlinked so
// the first Keycloak login with preferred_username "demo" adopts it.
const DemoUsername = "demo"

var demoTodos = []todo.Params{
	{Title: "Try the API docs at /api/docs", Description: "The OpenAPI document lists every route."},
	{Title: "Log in through Keycloak", Description: "Your first login links this account to your subject."},
	{Title: "Mark this todo as done", Completed: true},
}

// Run creates the demo user and sample todos. It is idempotent: re-running
// leaves an existing demo user untouched.
func Run(ctx context.Context, dbtx db.DBTX, logger *slog.Logger) error {
	users := user.NewStore(dbtx)

	if existing, err := users.GetByUsername(ctx, DemoUsername); err == nil {
		logger.Info("seed: demo user already exists", "id", existing.ID)
		return nil
	} else if !errors.Is(err, user.ErrNotFound) {
		return fmt.Errorf("looking up demo user: %w", err)
	}

	demo, err := users.Create(ctx, user.CreateParams{
		Username:    DemoUsername,
		Email:       "demo@example.com",
		DisplayName: "Demo User",
	})
	if err != nil {
		return fmt.Errorf("creating demo user: %w", err)
	}
	logger.Info("seed: created user", "username", demo.Username, "id", demo.ID)

	todos := todo.NewStore(dbtx)
	for _, p := range demoTodos {
		t, err := todos.Create(ctx, demo.ID, p)
		if err != nil {
			return fmt.Errorf("creating todo %q: %w", p.Title, err)
		}
		logger.Info("seed: created todo", "title", t.Title, "id", t.ID)
	}

	return nil
}
