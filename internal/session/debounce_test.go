package session

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncerFiresOnce(t *testing.T) {
	var fired atomic.Int32
	var db Debouncer

	db.Arm(10*time.Millisecond, func() { fired.Add(1) })
	require.Eventually(t, func() bool {
		return fired.Load() == 1
	}, time.Second, time.Millisecond)
}

func TestDebouncerArmReplacesPending(t *testing.T) {
	var first, second atomic.Int32
	var db Debouncer

	db.Arm(50*time.Millisecond, func() { first.Add(1) })
	db.Arm(10*time.Millisecond, func() { second.Add(1) })

	require.Eventually(t, func() bool {
		return second.Load() == 1
	}, time.Second, time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
}

func TestDebouncerStop(t *testing.T) {
	var fired atomic.Int32
	var db Debouncer

	db.Arm(10*time.Millisecond, func() { fired.Add(1) })
	db.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestDebouncerStopWithoutArm(t *testing.T) {
	var db Debouncer
	db.Stop()
}
