package controller

import (
	"context"
	"log"
	"sync"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/schedule"
)

// MockController logs every interval instead of driving hardware.
// Reject, when set, decides whether the "hardware" refuses a schedule.
type MockController struct {
	Reject func(s *schedule.Schedule) bool

	mu      sync.Mutex
	applied []*schedule.Schedule
}

func NewMockController() *MockController {
	return &MockController{}
}

func (m *MockController) Apply(ctx context.Context, s *schedule.Schedule) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if m.Reject != nil && m.Reject(s) {
		log.Printf("[MOCK] Rejecting schedule %s for %s", s.ScheduleID, s.DeviceID)
		return false, nil
	}

	log.Printf("[MOCK] Applying schedule %s for %s (%d intervals)", s.ScheduleID, s.DeviceID, len(s.Intervals))
	for _, iv := range s.Intervals {
		if iv.StartTime == nil || iv.PowerKW == nil {
			continue
		}
		if *iv.PowerKW != 0 {
			log.Printf("[MOCK]   %s -> %+.3f kW (%s)", iv.StartTime, *iv.PowerKW, schedule.ModeFor(*iv.PowerKW))
		}
	}

	m.mu.Lock()
	m.applied = append(m.applied, s)
	m.mu.Unlock()
	return true, nil
}

// Applied returns the schedules accepted so far.
func (m *MockController) Applied() []*schedule.Schedule {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*schedule.Schedule, len(m.applied))
	copy(out, m.applied)
	return out
}
