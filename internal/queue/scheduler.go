package queue

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/tenantauth/internal/config"
)

// NewScheduler registers the periodic tasks: today only the users cache
// warm, every interval.
func NewScheduler(cfg config.RedisConfig, interval time.Duration) (*asynq.Scheduler, error) {
	s := asynq.NewScheduler(RedisOpt(cfg), nil)

	task, err := newTask(TypeUsersCacheWarm, UsersCacheWarmPayload{Reason: "schedule"})
	if err != nil {
		return nil, err
	}
	if _, err := s.Register(EverySpec(interval), task, warmOptions()...); err != nil {
		return nil, fmt.Errorf("register %s: %w", TypeUsersCacheWarm, err)
	}
	return s, nil
}
