package scheduler

import (
	"math"

	"github.com/backmassage/dashmaster/internal/config"
)

// Decision is what happens to a task after a failed attempt.
type Decision int

const (
	RetryParallel Decision = iota // front of the pending queue
	RetryRedo                     // back of the serial redo queue
	Abort                         // retry budget spent
)

func (d Decision) String() string {
	switch d {
	case RetryParallel:
		return "retry"
	case RetryRedo:
		return "redo"
	default:
		return "abort"
	}
}

// Policy holds the retry tier thresholds.
type Policy struct {
	MaxTries            int
	EarlyFailurePercent float64 // progress below this counts as an early failure
	EarlyRetryFraction  float64 // early failures retry in parallel below floor(this*MaxTries) attempts
	AnyRetryFraction    float64 // any failure retries in parallel below floor(this*MaxTries) attempts
}

// DefaultPolicy returns the stock thresholds: six tries, early below 10%,
// parallel retries below 4 attempts when early and below 3 otherwise.
func DefaultPolicy() Policy {
	return Policy{
		MaxTries:            6,
		EarlyFailurePercent: 10,
		EarlyRetryFraction:  0.75,
		AnyRetryFraction:    0.5,
	}
}

// PolicyFromConfig reads the thresholds from cfg.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		MaxTries:            cfg.MaxTries,
		EarlyFailurePercent: cfg.EarlyFailurePercent,
		EarlyRetryFraction:  cfg.EarlyRetryFraction,
		AnyRetryFraction:    cfg.AnyRetryFraction,
	}
}

// OnFailure decides where a task goes after its attempts-th attempt failed
// having reached percent. fromRedo is set when that attempt was drawn from
// the redo queue; such a task never returns to the parallel pool.
func (p Policy) OnFailure(attempts int, percent float64, fromRedo bool) Decision {
	if attempts >= p.MaxTries {
		return Abort
	}
	if fromRedo {
		return RetryRedo
	}
	early := percent < p.EarlyFailurePercent && attempts < p.threshold(p.EarlyRetryFraction)
	if early || attempts < p.threshold(p.AnyRetryFraction) {
		return RetryParallel
	}
	return RetryRedo
}

func (p Policy) threshold(fraction float64) int {
	return int(math.Floor(fraction * float64(p.MaxTries)))
}
