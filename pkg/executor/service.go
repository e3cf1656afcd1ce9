// Package executor isolates hardware control faults from the device flow.
package executor

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/schedule"
)

type Adapter struct {
	controller Controller
	locks      sync.Map // device_id -> *sync.Mutex
}

func NewAdapter(controller Controller) *Adapter {
	return &Adapter{controller: controller}
}

// Apply never panics and never returns an error to the caller, every fault
// ends up in the Outcome. Calls for the same device run one at a time.
func (a *Adapter) Apply(ctx context.Context, s *schedule.Schedule) (out Outcome) {
	if s == nil {
		return failure("hardware error: no schedule to apply")
	}
	if a.controller == nil {
		return failure("hardware error: no controller configured")
	}

	mu := a.lockFor(s.DeviceID)
	mu.Lock()
	defer mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[EXECUTOR] Controller panicked for %s/%s: %v", s.DeviceID, s.ScheduleID, r)
			out = failure(fmt.Sprintf("hardware error: %v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return failure(fmt.Sprintf("hardware error: %v", err))
	}

	ok, err := a.controller.Apply(ctx, s)
	if err != nil {
		log.Printf("[EXECUTOR] Controller failed for %s/%s: %v", s.DeviceID, s.ScheduleID, err)
		return failure(fmt.Sprintf("hardware error: %v", err))
	}
	if !ok {
		return failure("hardware rejected schedule")
	}
	return Outcome{OK: true}
}

func (a *Adapter) lockFor(deviceID string) *sync.Mutex {
	mu, _ := a.locks.LoadOrStore(deviceID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func failure(reason string) Outcome {
	return Outcome{
		OK:     false,
		Reason: reason,
		Err:    schedule.NewProtocolError(schedule.ErrExecution, reason),
	}
}
