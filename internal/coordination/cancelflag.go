package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/northcloud/eventorch/internal/domain"
)

const cancelFlagPrefix = "eventorch:cancel"

// cancelFlagTTL bounds a flag's lifetime so a worker that crashes without
// ever clearing its flag does not leak the key forever.
const cancelFlagTTL = 24 * time.Hour

// CancelFlags is the C5-owned key/value namespace for cancel signalling,
// partitioned by job id so no other component writes the same key (§5).
type CancelFlags struct {
	client *redis.Client
}

// NewCancelFlags binds a CancelFlags store to client.
func NewCancelFlags(client *redis.Client) *CancelFlags {
	return &CancelFlags{client: client}
}

func cancelFlagKey(jobID string) string {
	return fmt.Sprintf("%s:%s", cancelFlagPrefix, jobID)
}

// Get reads the current cancel-flag value for jobID, if any.
func (c *CancelFlags) Get(ctx context.Context, jobID string) (domain.CancelState, bool, error) {
	val, err := c.client.Get(ctx, cancelFlagKey(jobID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("coordination: get cancel flag for %s: %w", jobID, err)
	}
	return domain.CancelState(val), true, nil
}

// Set writes state for jobID.
func (c *CancelFlags) Set(ctx context.Context, jobID string, state domain.CancelState) error {
	if err := c.client.Set(ctx, cancelFlagKey(jobID), string(state), cancelFlagTTL).Err(); err != nil {
		return fmt.Errorf("coordination: set cancel flag for %s: %w", jobID, err)
	}
	return nil
}

// Clear removes any cancel-flag for jobID. Called by C5 on terminal job
// states (§4.5).
func (c *CancelFlags) Clear(ctx context.Context, jobID string) error {
	if err := c.client.Del(ctx, cancelFlagKey(jobID)).Err(); err != nil {
		return fmt.Errorf("coordination: clear cancel flag for %s: %w", jobID, err)
	}
	return nil
}
