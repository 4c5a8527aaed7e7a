package engine

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyRecoversAfterOneFailure(t *testing.T) {
	var logs bytes.Buffer
	policy := NewRetryPolicy(2, zerolog.New(&logs))

	calls := 0
	attempts, err := policy.Do(context.Background(), "add-groonga-repository", func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("ppa unreachable")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 2, calls)

	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"level":"warn"`)
	assert.Contains(t, lines[0], "add-groonga-repository failed; retrying...")
	assert.Contains(t, lines[0], `"attempt":1`)
}

func TestRetryPolicyExhaustsBudget(t *testing.T) {
	boom := errors.New("boom")
	policy := NewRetryPolicy(3, zerolog.Nop())

	calls := 0
	attempts, err := policy.Do(context.Background(), "npm", func(context.Context) error {
		calls++
		return boom
	})

	assert.Same(t, boom, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicyBudgetBelowOne(t *testing.T) {
	for _, budget := range []int{0, -1} {
		calls := 0
		attempts, err := NewRetryPolicy(budget, zerolog.Nop()).Do(context.Background(), "x", func(context.Context) error {
			calls++
			return errors.New("fail")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, attempts)
		assert.Equal(t, 1, calls)
	}
}

func TestRetryPolicyStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	attempts, err := NewRetryPolicy(5, zerolog.Nop()).Do(ctx, "x", func(context.Context) error {
		calls++
		cancel()
		return context.Canceled
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicyOnRetry(t *testing.T) {
	policy := NewRetryPolicy(3, zerolog.Nop())
	var seen []int
	policy.OnRetry = func(name string, attempt int, _ error) {
		assert.Equal(t, "step", name)
		seen = append(seen, attempt)
	}

	_, err := policy.Do(context.Background(), "step", func(context.Context) error {
		return errors.New("fail")
	})
	assert.Error(t, err)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestWithRetryReturnsValue(t *testing.T) {
	calls := 0
	v, attempts, err := WithRetry(context.Background(), NewRetryPolicy(2, zerolog.Nop()), "probe",
		func(context.Context) (string, error) {
			calls++
			if calls < 2 {
				return "", errors.New("not yet")
			}
			return "xenial", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "xenial", v)
	assert.Equal(t, 2, attempts)
}
