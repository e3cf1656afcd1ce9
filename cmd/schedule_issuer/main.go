// Schedule issuer publishes the daily battery schedules over MQTT, collects
// the acknowledgements and serves them over HTTP and websocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/capability"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/config"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/issuer"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/issuerapi"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/issuerdb"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/logsetup"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/monitor"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/pathing"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/transport"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/validator"
	"github.com/robfig/cron/v3"
)

func main() {
	if err := pathing.EnsureDirs(); err != nil {
		log.Fatalf("Failed to create directories: %v", err)
	}

	// Load config
	if err := config.LoadIssuerConfig(); err != nil {
		log.Fatalf("Failed to load issuer config: %v", err)
	}
	cfg := config.ActiveIssuerConfig
	defer logsetup.Setup(cfg.LogFile).Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	issuerdb.InitializeDatabase()
	store := issuerdb.NewStore(issuerdb.GetDB())
	defer store.Close()

	registry := capability.NewRegistry(cfg.DefaultMaxPowerKW)
	for _, d := range cfg.Devices {
		registry.Register(d.DeviceID, capability.Capabilities{MaxPowerKW: d.MaxPowerKW, Model: d.Model})
	}

	profile := validator.DefaultProfile()
	profile.DefaultMaxPowerKW = cfg.DefaultMaxPowerKW
	v, err := validator.New(profile)
	if err != nil {
		log.Fatalf("Invalid validator profile: %v", err)
	}

	planner, err := issuer.NewWindowPlanner(cfg.Plan)
	if err != nil {
		log.Fatalf("Invalid plan: %v", err)
	}

	channel, err := transport.DialMQTT(ctx, transport.MQTTOptionsFrom(cfg.MQTT))
	if err != nil {
		log.Fatalf("Failed to connect to MQTT broker: %v", err)
	}
	defer channel.Close()

	hub := monitor.NewHub()
	iss, err := issuer.New(issuer.Options{
		Version:            cfg.ProtocolVersion,
		IncludeMode:        cfg.IncludeMode,
		Devices:            registry.DeviceIDs(),
		Capabilities:       registry,
		Planner:            planner,
		Validator:          v,
		Channel:            channel,
		Store:              store,
		AckTimeout:         time.Duration(cfg.AckTimeoutSeconds) * time.Second,
		MaxPublishAttempts: cfg.MaxPublishAttempts,
		DefaultMaxPowerKW:  cfg.DefaultMaxPowerKW,
		PublishCron:        cfg.PublishCron,
		RepublishCron:      cfg.RepublishCron,
		PlanDaysAhead:      cfg.PlanDaysAhead,
		OnAck:              hub.Broadcast,
	})
	if err != nil {
		log.Fatalf("Failed to create issuer: %v", err)
	}
	if err := iss.Start(ctx); err != nil {
		log.Fatalf("Failed to subscribe to acknowledgements: %v", err)
	}
	defer iss.Stop()

	c := cron.New()
	if err := iss.RegisterJobs(ctx, c); err != nil {
		log.Fatalf("Failed to register jobs: %v", err)
	}
	c.Start()
	defer c.Stop()

	listener := fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.ListenPort)
	server := &http.Server{
		Addr: listener,
		Handler: issuerapi.NewMux(&issuerapi.API{
			Store:         store,
			Publisher:     iss,
			Hub:           hub,
			DefaultPeriod: func() string { return issuer.PeriodFor(time.Now(), cfg.PlanDaysAhead) },
		}),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("Starting Battery Schedule Issuer API on %s", listener)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	log.Println("Schedule issuer stopped")
}
