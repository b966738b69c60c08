package startup

import (
	"fmt"
	"os"
	"path/filepath"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"

	"github.com/collab/internal/config"
	"github.com/collab/internal/logger"
)

// EmbeddedPort — порт встроенного Postgres в режиме --dev.
const EmbeddedPort = 5433

// StartEmbeddedPostgres поднимает Postgres в ./.pgdata и переключает cfg на него.
func StartEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		user     = "collab"
		password = "collab_secret"
		database = "collab"
	)
	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, EmbeddedPort, database,
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(EmbeddedPort).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "collab-embedded-pg")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	logger.Infof("embedded PostgreSQL running on port %d", EmbeddedPort)
	return db, nil
}
