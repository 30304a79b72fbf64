package generation

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryConfig_Delay(t *testing.T) {
	tests := []struct {
		name string
		cfg  RetryConfig
		want []time.Duration
	}{
		{
			name: "linear",
			cfg:  RetryConfig{BaseDelay: time.Second, Strategy: BackoffLinear},
			want: []time.Duration{time.Second, 2 * time.Second, 3 * time.Second},
		},
		{
			name: "linear capped",
			cfg:  RetryConfig{BaseDelay: time.Second, MaxBackoff: 2 * time.Second, Strategy: BackoffLinear},
			want: []time.Duration{time.Second, 2 * time.Second, 2 * time.Second},
		},
		{
			name: "exponential capped",
			cfg:  RetryConfig{BaseDelay: time.Second, MaxBackoff: 5 * time.Second, Strategy: BackoffExponential},
			want: []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second},
		},
		{
			name: "empty strategy is linear",
			cfg:  RetryConfig{BaseDelay: 10 * time.Millisecond},
			want: []time.Duration{10 * time.Millisecond, 20 * time.Millisecond},
		},
		{
			name: "exponential overflow capped",
			cfg:  RetryConfig{BaseDelay: time.Duration(math.MaxInt64 / 2), MaxBackoff: time.Hour, Strategy: BackoffExponential},
			want: []time.Duration{time.Hour, time.Hour, time.Hour},
		},
		{
			name: "exponential overflow uncapped",
			cfg:  RetryConfig{BaseDelay: time.Duration(math.MaxInt64/2 + 1), Strategy: BackoffExponential},
			want: []time.Duration{time.Duration(math.MaxInt64/2 + 1), time.Duration(math.MaxInt64)},
		},
		{
			name: "zero base delay",
			cfg:  RetryConfig{Strategy: BackoffExponential},
			want: []time.Duration{0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i, want := range tt.want {
				assert.Equal(t, want, tt.cfg.Delay(i+1), "attempt %d", i+1)
			}
		})
	}
}

func TestRetryConfig_DelayIsMonotonic(t *testing.T) {
	for _, strategy := range []Backoff{BackoffLinear, BackoffExponential} {
		cfg := RetryConfig{BaseDelay: 300 * time.Millisecond, MaxBackoff: 10 * time.Second, Strategy: strategy}
		prev := time.Duration(0)
		for attempt := 1; attempt <= 64; attempt++ {
			d := cfg.Delay(attempt)
			assert.GreaterOrEqual(t, d, prev, "%s attempt %d", strategy, attempt)
			assert.LessOrEqual(t, d, cfg.MaxBackoff)
			prev = d
		}
	}
}

func TestRetryConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultRetryConfig().Validate())
	assert.Error(t, RetryConfig{MaxAttempts: 0}.Validate())
	assert.Error(t, RetryConfig{MaxAttempts: 1, BaseDelay: -1}.Validate())
	assert.Error(t, RetryConfig{MaxAttempts: 1, Strategy: "fibonacci"}.Validate())
}
