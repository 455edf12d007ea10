// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff_NextDelay(t *testing.T) {
	b := NewExponentialBackoff()
	b.Jitter = 0

	delay, ok := b.NextDelay(0)
	require.True(t, ok)
	assert.Equal(t, b.InitialDelay, delay)

	delay, ok = b.NextDelay(1)
	require.True(t, ok)
	assert.Equal(t, b.InitialDelay*2, delay)

	_, ok = b.NextDelay(b.MaxAttempts)
	assert.False(t, ok)
}

func TestExponentialBackoff_CapsAtMaxDelay(t *testing.T) {
	b := &ExponentialBackoff{
		InitialDelay: time.Second,
		MaxDelay:     2 * time.Second,
		Multiplier:   10,
		MaxAttempts:  5,
	}

	delay, ok := b.NextDelay(3)
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, delay)
}

func TestLinearBackoff_NextDelay(t *testing.T) {
	b := NewLinearBackoff()
	b.Jitter = 0

	delay, ok := b.NextDelay(0)
	require.True(t, ok)
	assert.Equal(t, b.InitialDelay, delay)

	delay, ok = b.NextDelay(2)
	require.True(t, ok)
	assert.Equal(t, b.InitialDelay+2*b.Increment, delay)
}

func TestFibonacciBackoff_NextDelay(t *testing.T) {
	b := NewFibonacciBackoff()

	d0, ok := b.NextDelay(0)
	require.True(t, ok)
	d1, _ := b.NextDelay(1)
	d2, _ := b.NextDelay(2)

	assert.Equal(t, d0, d1, "first two Fibonacci terms are equal")
	assert.True(t, d2 > d1)
}

func TestFibonacciBackoff_Reset(t *testing.T) {
	b := NewFibonacciBackoff()
	_, _ = b.NextDelay(8)
	assert.True(t, len(b.fib) > 2)

	b.Reset()
	assert.Equal(t, []int{1, 1}, b.fib)
}

func TestConstantBackoff_NextDelay(t *testing.T) {
	b := NewConstantBackoff(10*time.Second, 3)

	for attempt := 0; attempt < 3; attempt++ {
		delay, ok := b.NextDelay(attempt)
		require.True(t, ok)
		assert.Equal(t, 10*time.Second, delay)
	}

	_, ok := b.NextDelay(3)
	assert.False(t, ok)
}

func TestRetry_SucceedsWithoutRetrying(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), NewConstantBackoff(time.Millisecond, 3), func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), NewConstantBackoff(time.Millisecond, 5), func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), NewConstantBackoff(time.Millisecond, 2), func() error {
		calls++
		return errors.New("always fails")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, NewConstantBackoff(time.Second, 5), func() error {
		calls++
		return errors.New("fails")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	calls := 0
	result, err := RetryWithResult(context.Background(), NewConstantBackoff(time.Millisecond, 5), func() (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("not yet")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 2, calls)
}
