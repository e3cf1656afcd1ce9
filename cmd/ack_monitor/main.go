// Ack monitor follows the issuer's acknowledgement stream and periodically
// prints the delivery summary table.
// Depends on the schedule issuer API being online.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/config"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/issuerapi"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/monitor"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/pathing"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/schedule"
)

func main() {
	if err := pathing.EnsureDirs(); err != nil {
		log.Fatalf("Failed to create directories: %v", err)
	}
	if err := config.LoadAckMonitorConfig(); err != nil {
		log.Fatalf("Failed to load ack monitor config: %v", err)
	}
	cfg := config.ActiveAckMonitorConfig

	// Override the host with env var ISSUER_API_HOST
	if host := os.Getenv("ISSUER_API_HOST"); host != "" {
		cfg.IssuerAPIHost = host
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.SummaryIntervalSeconds > 0 {
		go printSummaries(ctx, cfg, time.Duration(cfg.SummaryIntervalSeconds)*time.Second)
	}

	// Subscribe to websocket with revive
	monitor.StartListener(ctx, cfg.IssuerAPIHost, cfg.TLSEnabled, handleAck)
}

// Handle acknowledgement data
func handleAck(a *schedule.Acknowledgement) {
	payload, err := a.Encode()
	if err != nil {
		log.Printf("Failed to encode acknowledgement: %v", err)
		return
	}
	fmt.Println(string(payload))
}

func printSummaries(ctx context.Context, cfg *config.AckMonitorConfig, interval time.Duration) {
	scheme := "http"
	if cfg.TLSEnabled {
		scheme = "https"
	}
	u := url.URL{Scheme: scheme, Host: cfg.IssuerAPIHost, Path: "/summary"}
	client := &http.Client{Timeout: 10 * time.Second}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		summary, err := fetchSummary(ctx, client, u.String())
		if err != nil {
			log.Printf("Failed to fetch summary: %v", err)
		} else {
			fmt.Print(monitor.FormatSummary(summary.Rows))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func fetchSummary(ctx context.Context, client *http.Client, endpoint string) (*issuerapi.SummaryResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var summary issuerapi.SummaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, err
	}
	return &summary, nil
}
