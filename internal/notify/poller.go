// Package notify polls the unread notification count for a signed-in user.
package notify

import (
	"context"
	"log/slog"
	"time"
)

const DefaultInterval = 30 * time.Second

type Poller struct {
	Fetch    func(ctx context.Context) (int64, error)
	Interval time.Duration
	// OnChange is called with the new count whenever it differs from the
	// last successful fetch. The first successful fetch always reports.
	OnChange func(count int64)
	Logger   *slog.Logger
}

// Run polls until ctx is cancelled. Fetch errors are logged and the previous
// count is kept.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}

	last := int64(-1)
	poll := func() {
		n, err := p.Fetch(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("unread count fetch failed", "error", err)
			}
			return
		}
		if n != last {
			last = n
			if p.OnChange != nil {
				p.OnChange(n)
			}
		}
	}

	poll()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			poll()
		}
	}
}
