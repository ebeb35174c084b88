package dispatch

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/mailrun/mailrun/internal/config"
	"github.com/mailrun/mailrun/internal/model"
)

// Mode selects how recipients are submitted to the transport.
type Mode string

// Pacing modes
const (
	// ModeConcurrent keeps up to Workers sends in flight.
	ModeConcurrent Mode = "concurrent"
	// ModeSequential sends one message at a time with a random pause between sends.
	ModeSequential Mode = "sequential"
)

// Pacing is the scheduling policy of a run.
type Pacing struct {
	Mode     Mode
	Workers  int
	MinDelay time.Duration
	MaxDelay time.Duration
}

// PacingFromConfig converts the pacing section of the configuration.
func PacingFromConfig(cfg config.PacingConfig) Pacing {
	return Pacing{
		Mode:     Mode(cfg.Mode),
		Workers:  cfg.Workers,
		MinDelay: cfg.MinDelay,
		MaxDelay: cfg.MaxDelay,
	}
}

// Validate checks the policy is usable.
func (p Pacing) Validate() error {
	switch p.Mode {
	case ModeConcurrent:
		if p.Workers < 1 {
			return fmt.Errorf("%w: concurrent pacing needs at least one worker, got %d", model.ErrValidation, p.Workers)
		}
	case ModeSequential:
		if p.MinDelay < 0 || p.MaxDelay < p.MinDelay {
			return fmt.Errorf("%w: invalid delay range [%s, %s]", model.ErrValidation, p.MinDelay, p.MaxDelay)
		}
	default:
		return fmt.Errorf("%w: unknown pacing mode %q", model.ErrValidation, p.Mode)
	}
	return nil
}

// Delay draws the pause between two sequential sends, uniform in
// [MinDelay, MaxDelay]. randN must return a value in [0, n).
func (p Pacing) Delay(randN func(n int64) int64) time.Duration {
	spread := int64(p.MaxDelay - p.MinDelay)
	if spread <= 0 {
		return p.MinDelay
	}
	if randN == nil {
		randN = rand.Int64N
	}
	return p.MinDelay + time.Duration(randN(spread+1))
}

func (p Pacing) String() string {
	if p.Mode == ModeSequential {
		return fmt.Sprintf("sequential (%s-%s)", p.MinDelay, p.MaxDelay)
	}
	return fmt.Sprintf("concurrent (%d workers)", p.Workers)
}
