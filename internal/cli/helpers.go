package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/debussylabs/debussy/internal/config"
	"github.com/debussylabs/debussy/internal/db/driver"
	deberrors "github.com/debussylabs/debussy/internal/errors"
	"github.com/debussylabs/debussy/internal/state"
)

// projectRoot is the directory debussy anchors its state under. All
// commands run from the project root, like git.
func projectRoot() (string, error) {
	root, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return root, nil
}

// openStore opens the state store the config points at: project-local
// sqlite by default, postgres when store.driver says so.
func openStore(cfg *config.Config, root string) (*state.Store, error) {
	if cfg.Database.Driver == "postgres" {
		return state.OpenWithDialect(cfg.Database.Postgres.DSN(), driver.DialectPostgres)
	}
	return state.Open(config.DBPath(root))
}

// requireCurrentRun returns the active (RUNNING or PAUSED) run.
func requireCurrentRun(ctx context.Context, st *state.Store) (*state.Run, error) {
	run, err := st.GetCurrentRun(ctx)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, deberrors.ErrNoCurrentRun()
	}
	return run, nil
}
