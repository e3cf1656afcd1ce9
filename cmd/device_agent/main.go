// Device agent receives schedules for one battery, applies them through the
// configured controller and acknowledges every delivery.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/config"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/controller"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/device"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/executor"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/logsetup"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/pathing"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/transport"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/validator"
)

func main() {
	if err := pathing.EnsureDirs(); err != nil {
		log.Fatalf("Failed to create directories: %v", err)
	}

	// Load config
	if err := config.LoadDeviceAgentConfig(); err != nil {
		log.Fatalf("Failed to load device agent config: %v", err)
	}
	cfg := config.ActiveDeviceAgentConfig
	defer logsetup.Setup(cfg.LogFile).Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hw, err := controller.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create controller: %v", err)
	}

	profile := validator.DefaultProfile()
	if len(cfg.SupportedVersions) > 0 {
		profile.SupportedVersions = cfg.SupportedVersions
	}
	if cfg.DefaultMaxPowerKW > 0 {
		profile.DefaultMaxPowerKW = cfg.DefaultMaxPowerKW
	}
	v, err := validator.New(profile)
	if err != nil {
		log.Fatalf("Invalid validator profile: %v", err)
	}

	channel, err := transport.DialMQTT(ctx, transport.MQTTOptionsFrom(cfg.MQTT))
	if err != nil {
		log.Fatalf("Failed to connect to MQTT broker: %v", err)
	}
	defer channel.Close()

	flow, err := device.NewFlow(device.Options{
		DeviceID:        cfg.DeviceID,
		Validator:       v,
		Executor:        executor.NewAdapter(hw),
		Channel:         channel,
		SendReceivedAck: cfg.SendReceivedAck,
	})
	if err != nil {
		log.Fatalf("Failed to create device flow: %v", err)
	}
	if err := flow.Start(ctx); err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}

	log.Printf("Device agent %s running with %s controller", cfg.DeviceID, cfg.Controller)
	<-ctx.Done()

	if err := flow.Stop(); err != nil {
		log.Printf("Failed to unsubscribe: %v", err)
	}
	log.Println("Device agent stopped")
}
