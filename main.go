// Runs the schedule exchange in a single process: one issuer and a few
// simulated batteries over an in-memory channel, then prints the summary.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/capability"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/controller"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/device"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/executor"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/issuer"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/issuerdb"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/monitor"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/schedule"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/transport"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/validator"
)

type demoDevice struct {
	id         string
	maxPowerKW float64
	reject     bool
}

var devices = []demoDevice{
	{id: "battery-001", maxPowerKW: 50},
	{id: "battery-002", maxPowerKW: 20},
	{id: "battery-003", maxPowerKW: 8, reject: true},
}

func main() {
	log.SetOutput(os.Stdout)
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "bsx-demo-")
	if err != nil {
		log.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	conn, err := issuerdb.Open(filepath.Join(dir, "issuer.db"))
	if err != nil {
		log.Fatalf("Failed to open journal: %v", err)
	}
	store := issuerdb.NewStore(conn)
	defer store.Close()

	channel := transport.NewMemoryChannel()
	defer channel.Close()

	v, err := validator.New(validator.DefaultProfile())
	if err != nil {
		log.Fatal(err)
	}

	registry := capability.NewRegistry(validator.DefaultMaxPowerKW)
	for _, d := range devices {
		registry.Register(d.id, capability.Capabilities{MaxPowerKW: d.maxPowerKW, Model: "demo"})

		hw := controller.NewMockController()
		if d.reject {
			hw.Reject = func(*schedule.Schedule) bool { return true }
		}
		flow, err := device.NewFlow(device.Options{
			DeviceID:  d.id,
			Validator: v,
			Executor:  executor.NewAdapter(hw),
			Channel:   channel,
		})
		if err != nil {
			log.Fatal(err)
		}
		if err := flow.Start(ctx); err != nil {
			log.Fatal(err)
		}
	}

	planner, err := issuer.NewWindowPlanner(nil)
	if err != nil {
		log.Fatal(err)
	}
	iss, err := issuer.New(issuer.Options{
		Version:            "1.0",
		IncludeMode:        true,
		Devices:            registry.DeviceIDs(),
		Capabilities:       registry,
		Planner:            planner,
		Validator:          v,
		Channel:            channel,
		Store:              store,
		AckTimeout:         time.Minute,
		MaxPublishAttempts: 3,
	})
	if err != nil {
		log.Fatal(err)
	}
	if err := iss.Start(ctx); err != nil {
		log.Fatal(err)
	}

	period := issuer.PeriodFor(time.Now(), 1)

	fmt.Println("=== Publishing", period, "to all devices ===")
	if err := iss.PublishAll(ctx, period); err != nil {
		log.Printf("Publish incomplete: %v", err)
	}

	fmt.Println("=== Redelivering the schedule of battery-001 ===")
	if sent := channel.PublishedTo(transport.ScheduleTopic("battery-001")); len(sent) > 0 {
		publishRaw(ctx, channel, "battery-001", sent[0].Payload)
	}

	fmt.Println("=== Schedule above the limit of battery-002 ===")
	publishRaw(ctx, channel, "battery-002", overLimitSchedule("battery-002", period))

	fmt.Println("=== Unreadable payload to battery-001 ===")
	publishRaw(ctx, channel, "battery-001", []byte(`{"schedule_id": `))

	fmt.Println("=== Unknown device ===")
	if _, err := iss.BuildAndPublish(ctx, "battery-404", period); err != nil {
		log.Printf("Refused: %v", err)
	}

	rows, err := store.Summary(ctx, "")
	if err != nil {
		log.Fatalf("Failed to read summary: %v", err)
	}
	fmt.Println()
	fmt.Print(monitor.FormatSummary(rows))
}

func publishRaw(ctx context.Context, channel transport.Channel, deviceID string, payload []byte) {
	if err := channel.Publish(ctx, transport.ScheduleTopic(deviceID), payload); err != nil {
		log.Printf("Failed to publish to %s: %v", deviceID, err)
	}
}

func overLimitSchedule(deviceID, period string) []byte {
	s := schedule.Schedule{
		ScheduleID: period + "-manual",
		DeviceID:   deviceID,
		Version:    "1.0",
		Intervals: []schedule.Interval{
			schedule.NewInterval(schedule.NewTimeOfDay(12, 0, 0), 35),
		},
		IssuedAt:   time.Now().UTC().Truncate(time.Second),
		MaxPowerKW: schedule.Float(20),
	}
	payload, err := s.Encode()
	if err != nil {
		log.Fatal(err)
	}
	return payload
}
