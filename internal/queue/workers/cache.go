package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/tenantauth/internal/metrics"
	"github.com/nikhilbhutani/tenantauth/internal/queue"
)

type Warmer interface {
	WarmCache(ctx context.Context) error
}

// CacheWorker rebuilds the users listing cache. Failures are logged and
// counted but never retried; the next scheduled run tries again.
type CacheWorker struct {
	users Warmer
}

func NewCacheWorker(users Warmer) *CacheWorker {
	return &CacheWorker{users: users}
}

func (w *CacheWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.UsersCacheWarmPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			slog.Warn("ignoring malformed cache warm payload", "error", err)
		}
	}

	start := time.Now()
	err := w.users.WarmCache(ctx)
	metrics.CacheWarm(err)
	if err != nil {
		slog.Error("users cache warm failed", "reason", payload.Reason, "error", err)
		return nil
	}

	slog.Info("users cache warmed", "reason", payload.Reason, "duration_ms", time.Since(start).Milliseconds())
	return nil
}
