package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/backmassage/dashmaster/internal/config"
)

func TestPolicy_OnFailure(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		name     string
		attempts int
		percent  float64
		fromRedo bool
		want     Decision
	}{
		{"first early failure", 1, 0, false, RetryParallel},
		{"third early failure", 3, 9.9, false, RetryParallel},
		{"fourth early failure demoted", 4, 5, false, RetryRedo},
		{"second late failure", 2, 80, false, RetryParallel},
		{"third late failure demoted", 3, 10, false, RetryRedo},
		{"redo failure requeued", 4, 0, true, RetryRedo},
		{"fifth redo failure requeued", 5, 99, true, RetryRedo},
		{"sixth failure aborts", 6, 0, true, Abort},
		{"budget spent in parallel", 6, 0, false, Abort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.OnFailure(tt.attempts, tt.percent, tt.fromRedo))
		})
	}
}

func TestPolicy_SingleTry(t *testing.T) {
	p := DefaultPolicy()
	p.MaxTries = 1
	assert.Equal(t, Abort, p.OnFailure(1, 0, false))
}

func TestPolicy_Thresholds(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 4, p.threshold(p.EarlyRetryFraction))
	assert.Equal(t, 3, p.threshold(p.AnyRetryFraction))

	p.MaxTries = 3
	assert.Equal(t, 2, p.threshold(p.EarlyRetryFraction))
	assert.Equal(t, 1, p.threshold(p.AnyRetryFraction))
}

func TestPolicyFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Equal(t, DefaultPolicy(), PolicyFromConfig(&cfg))
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateSucceeded, StateExhausted, StateCancelled} {
		assert.True(t, s.Terminal(), s.String())
	}
	for _, s := range []State{StatePending, StateRunning, StateFailed, StateRedoPending} {
		assert.False(t, s.Terminal(), s.String())
	}
}
