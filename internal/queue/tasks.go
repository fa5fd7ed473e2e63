package queue

import (
	"fmt"
	"time"
)

const (
	TypeUsersCacheWarm = "users:cache_warm"
)

type UsersCacheWarmPayload struct {
	// Reason is informational: "schedule", "startup" and so on.
	Reason string `json:"reason"`
}

// EverySpec is the asynq cron spec running a task once per interval.
func EverySpec(interval time.Duration) string {
	return fmt.Sprintf("@every %s", interval)
}
