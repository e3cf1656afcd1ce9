package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/schedule"
	"github.com/stretchr/testify/assert"
)

func sched(deviceID string) *schedule.Schedule {
	return &schedule.Schedule{ScheduleID: "2026-10-20", DeviceID: deviceID}
}

func TestApplySuccess(t *testing.T) {
	a := NewAdapter(ControllerFunc(func(context.Context, *schedule.Schedule) (bool, error) {
		return true, nil
	}))

	out := a.Apply(context.Background(), sched("pi-1"))
	assert.True(t, out.OK)
	assert.Empty(t, out.Reason)
	assert.NoError(t, out.Err)
}

func TestApplyRejected(t *testing.T) {
	a := NewAdapter(ControllerFunc(func(context.Context, *schedule.Schedule) (bool, error) {
		return false, nil
	}))

	out := a.Apply(context.Background(), sched("pi-1"))
	assert.False(t, out.OK)
	assert.Equal(t, "hardware rejected schedule", out.Reason)
	assert.ErrorIs(t, out.Err, schedule.ErrExecution)
}

func TestApplyError(t *testing.T) {
	a := NewAdapter(ControllerFunc(func(context.Context, *schedule.Schedule) (bool, error) {
		return false, errors.New("register write timed out")
	}))

	out := a.Apply(context.Background(), sched("pi-1"))
	assert.False(t, out.OK)
	assert.Equal(t, "hardware error: register write timed out", out.Reason)
	assert.ErrorIs(t, out.Err, schedule.ErrExecution)
}

func TestApplyRecoversPanic(t *testing.T) {
	a := NewAdapter(ControllerFunc(func(context.Context, *schedule.Schedule) (bool, error) {
		panic("bus fault")
	}))

	out := a.Apply(context.Background(), sched("pi-1"))
	assert.False(t, out.OK)
	assert.Equal(t, "hardware error: bus fault", out.Reason)

	// the device lock must be released after a panic
	done := make(chan Outcome)
	go func() { done <- a.Apply(context.Background(), sched("pi-1")) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("device lock still held after panic")
	}
}

func TestApplyWithoutControllerOrSchedule(t *testing.T) {
	assert.False(t, NewAdapter(nil).Apply(context.Background(), sched("pi-1")).OK)

	a := NewAdapter(ControllerFunc(func(context.Context, *schedule.Schedule) (bool, error) {
		return true, nil
	}))
	assert.False(t, a.Apply(context.Background(), nil).OK)
}

func TestApplyCancelledContext(t *testing.T) {
	called := false
	a := NewAdapter(ControllerFunc(func(context.Context, *schedule.Schedule) (bool, error) {
		called = true
		return true, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := a.Apply(ctx, sched("pi-1"))
	assert.False(t, out.OK)
	assert.False(t, called)
}

func TestApplySerialisesPerDevice(t *testing.T) {
	var active, maxActive int32
	a := NewAdapter(ControllerFunc(func(context.Context, *schedule.Schedule) (bool, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return true, nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Apply(context.Background(), sched("pi-1"))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive)
}

func TestApplyRunsDevicesInParallel(t *testing.T) {
	release := make(chan struct{})
	started := make(chan string, 2)
	a := NewAdapter(ControllerFunc(func(_ context.Context, s *schedule.Schedule) (bool, error) {
		started <- s.DeviceID
		<-release
		return true, nil
	}))

	var wg sync.WaitGroup
	for _, id := range []string{"pi-1", "pi-2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			a.Apply(context.Background(), sched(id))
		}(id)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("devices were not applied in parallel")
		}
	}
	close(release)
	wg.Wait()
}
