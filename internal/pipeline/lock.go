package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"taunote/internal/logging"
	"taunote/internal/services"
)

const lockRetryDelay = 500 * time.Millisecond

// acquireLock takes the pipeline lock, waiting for another run to finish
// when it is held. The returned function releases it.
func acquireLock(ctx context.Context, path string, logger *slog.Logger) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "lock", "create lock directory", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "pipeline", "lock", "acquire pipeline lock", err)
	}
	if !ok {
		logger.Info("waiting for another taunote run to finish",
			logging.String(logging.FieldEventType, "lock_wait"),
			logging.String("lock", path),
		)
		ok, err = lock.TryLockContext(ctx, lockRetryDelay)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "pipeline", "lock", "wait for pipeline lock", err)
		}
		if !ok {
			return nil, services.Wrap(services.ErrTransient, "pipeline", "lock", fmt.Sprintf("pipeline lock %s unavailable", path), nil)
		}
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release pipeline lock", logging.Error(err), logging.String("lock", path))
		}
	}, nil
}
