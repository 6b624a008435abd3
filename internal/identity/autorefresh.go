package identity

import (
	"context"
	"errors"
	"time"
)

const refreshRetryInterval = 10 * time.Second

// StartAutoRefresh refreshes the session shortly before it expires until ctx
// is cancelled. It returns when there is no session to keep alive.
func (c *Client) StartAutoRefresh(ctx context.Context) {
	// Loads the persisted session, refreshing it if already due.
	if _, err := c.GetSession(ctx); err != nil {
		c.log.Warn("session restore before auto refresh failed", "error", err)
	}

	for {
		c.mu.Lock()
		current := c.current
		c.mu.Unlock()
		if current == nil {
			return
		}

		wait := current.ExpiresAt.Sub(c.now()) - c.margin
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if _, err := c.Refresh(ctx); err != nil {
			c.log.Warn("background token refresh failed", "error", err)
			if ctx.Err() != nil {
				return
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Status < 500 {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(refreshRetryInterval):
			}
		}
	}
}
