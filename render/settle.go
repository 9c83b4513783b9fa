package render

import (
	"context"
	"time"
)

// SettleConfig holds the settlement timings.
type SettleConfig struct {
	// EmptyGrace is waited when the document references no resources.
	EmptyGrace time.Duration `yaml:"empty_grace"`
	// Grace is waited after the last tracked resource finished.
	Grace time.Duration `yaml:"grace"`
	// Ceiling forces settlement whatever is still pending.
	Ceiling time.Duration `yaml:"ceiling"`
	// PollInterval is how often progress is polled.
	PollInterval time.Duration `yaml:"poll_interval"`
}

func (c *SettleConfig) defaults() {
	if c.EmptyGrace <= 0 {
		c.EmptyGrace = 500 * time.Millisecond
	}
	if c.Grace <= 0 {
		c.Grace = 300 * time.Millisecond
	}
	if c.Ceiling <= 0 {
		c.Ceiling = 5 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 50 * time.Millisecond
	}
}

// Settlement describes how a surface settled.
type Settlement struct {
	// Loaded counts resources that fired load or error.
	Loaded int `json:"loaded"`
	Total  int `json:"total"`
	// Forced is true when the ceiling ended the wait.
	Forced  bool          `json:"forced"`
	Elapsed time.Duration `json:"elapsed"`
}

// Progress reports how many tracked resources have finished out of total.
type Progress func(ctx context.Context) (done, total int, err error)

// Settler waits for a surface to settle.
type Settler struct {
	cfg SettleConfig
	now func() time.Time
}

// NewSettler creates a Settler.
func NewSettler(cfg SettleConfig) *Settler {
	cfg.defaults()
	return &Settler{cfg: cfg, now: time.Now}
}

// Wait polls progress until every resource is done, then waits the grace
// period. With no resources it waits EmptyGrace. Reaching Ceiling settles
// the surface with Forced set; that is not an error. Wait fails only when
// ctx ends or progress errors.
func (s *Settler) Wait(ctx context.Context, progress Progress) (Settlement, error) {
	start := s.now()
	deadline := start.Add(s.cfg.Ceiling)
	var st Settlement

	for {
		done, total, err := progress(ctx)
		if err != nil {
			return st, err
		}
		st.Loaded, st.Total = done, total

		var grace time.Duration
		switch {
		case total == 0:
			grace = s.cfg.EmptyGrace
		case done >= total:
			grace = s.cfg.Grace
		}

		remaining := deadline.Sub(s.now())
		if grace > 0 {
			forced := grace > remaining
			if forced {
				grace = remaining
			}
			if err := sleep(ctx, grace); err != nil {
				return st, err
			}
			st.Forced = forced
			st.Elapsed = s.now().Sub(start)
			return st, nil
		}

		if remaining <= 0 {
			st.Forced = true
			st.Elapsed = s.now().Sub(start)
			return st, nil
		}
		if err := sleep(ctx, min(s.cfg.PollInterval, remaining)); err != nil {
			return st, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
