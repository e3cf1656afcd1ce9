// Package issuerapi serves the issuer journal over HTTP and streams
// acknowledgements to websocket clients.
package issuerapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/capability"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/issuer"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/issuerdb"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/monitor"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/schedule"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/transport"
)

// Publisher is the part of the issuer the API triggers manually.
type Publisher interface {
	BuildAndPublish(ctx context.Context, deviceID, period string) (*schedule.Schedule, error)
	PublishAll(ctx context.Context, period string) error
}

type API struct {
	Store     *issuerdb.Store
	Publisher Publisher
	Hub       *monitor.Hub
	// Period used when a request names none
	DefaultPeriod func() string
}

func NewMux(api *API) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message":         "Battery Schedule Exchange Issuer API",
			"status":          "running",
			"monitor_clients": api.Hub.ClientCount(),
		})
	})

	mux.HandleFunc("/schedules", func(w http.ResponseWriter, r *http.Request) {
		rows, err := api.Store.Schedules(r.Context(), r.URL.Query().Get("period"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, nonNil(rows))
	})

	mux.HandleFunc("/acks", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		acks, err := api.Store.Acks(r.Context(), q.Get("device_id"), q.Get("schedule_id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, nonNil(acks))
	})

	mux.HandleFunc("/summary", func(w http.ResponseWriter, r *http.Request) {
		rows, err := api.Store.Summary(r.Context(), r.URL.Query().Get("period"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, SummaryResponse{
			Rows:   nonNil(rows),
			Counts: monitor.CountByStatus(rows),
		})
	})

	mux.HandleFunc("/publish", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeError(w, http.StatusMethodNotAllowed, "use POST")
			return
		}
		q := r.URL.Query()
		period := q.Get("period")
		if period == "" && api.DefaultPeriod != nil {
			period = api.DefaultPeriod()
		}

		deviceID := q.Get("device_id")
		if deviceID == "" {
			if err := api.Publisher.PublishAll(r.Context(), period); err != nil {
				writeError(w, statusFor(err), err.Error())
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]string{"period": period, "status": "published"})
			return
		}

		s, err := api.Publisher.BuildAndPublish(r.Context(), deviceID, period)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, s)
	})

	mux.HandleFunc("/ws", api.Hub.ServeWS)

	return mux
}

type SummaryResponse struct {
	Rows   []issuerdb.SummaryRow `json:"rows"`
	Counts map[string]int        `json:"counts"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, capability.ErrUnknownDevice):
		return http.StatusNotFound
	case errors.Is(err, issuer.ErrInvalidPeriod), errors.Is(err, transport.ErrInvalidTopic):
		return http.StatusBadRequest
	case errors.Is(err, issuer.ErrInvalidSchedule):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
