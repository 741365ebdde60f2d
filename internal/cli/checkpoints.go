package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/vietddude/ivawatch/internal/core/config"
	"github.com/vietddude/ivawatch/internal/core/domain"
	redisclient "github.com/vietddude/ivawatch/internal/infra/redis"
	"github.com/vietddude/ivawatch/internal/infra/storage"
	"github.com/vietddude/ivawatch/internal/infra/storage/postgres"
)

// openCheckpoints opens the configured persistent checkpoint backend. The
// returned func closes it.
func openCheckpoints(ctx context.Context, cfg *config.AppConfig) (storage.CheckpointRepository, func(), error) {
	switch cfg.Checkpoint.Backend {
	case domain.CheckpointPostgres:
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		return postgres.NewCheckpointRepo(db), func() { _ = db.Close() }, nil
	case domain.CheckpointRedis:
		rc, err := redisclient.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return redisclient.NewCheckpointRepo(rc), func() { _ = rc.Close() }, nil
	default:
		return nil, nil, errors.New("checkpoint backend is memory, nothing is persisted")
	}
}
