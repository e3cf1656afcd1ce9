package monitor

import (
	"context"
	"log"
	"net/url"
	"time"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/schedule"
	"github.com/gorilla/websocket"
)

const (
	maxRetries     = 10
	baseRetryDelay = 2 * time.Second
	maxRetryDelay  = 60 * time.Second

	pingInterval = 30 * time.Second
	readTimeout  = 3 * pingInterval
)

// StartListener follows the issuer's acknowledgement stream and calls
// handleAck for each one. It reconnects with exponential backoff and
// returns when ctx is done or the retries are exhausted.
func StartListener(ctx context.Context, host string, tls bool, handleAck func(ack *schedule.Acknowledgement)) {
	scheme := "ws"
	if tls {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: host, Path: "/ws"}

	retryCount := 0
	for {
		if ctx.Err() != nil {
			return
		}

		if retryCount > 0 {
			retryDelay := time.Duration(1<<retryCount) * baseRetryDelay
			if retryDelay > maxRetryDelay {
				retryDelay = maxRetryDelay
			}
			log.Printf("Retrying connection in %v... (attempt %d/%d)", retryDelay, retryCount+1, maxRetries)
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				log.Println("Shutdown requested during retry wait")
				return
			}
		}

		log.Printf("Connecting to %s", u.String())

		dialer := *websocket.DefaultDialer
		dialer.HandshakeTimeout = 10 * time.Second
		c, _, err := dialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			log.Printf("Connection failed: %v", err)
			retryCount++
			if retryCount >= maxRetries {
				log.Printf("Max retries (%d) reached. Giving up.", maxRetries)
				return
			}
			continue
		}

		log.Println("Connected! Following acknowledgements.")
		retryCount = 0

		connectionBroken := handleConnection(ctx, c, handleAck)
		c.Close()

		if !connectionBroken {
			return
		}
		log.Println("Connection lost, will retry...")
	}
}

func handleConnection(ctx context.Context, c *websocket.Conn, handleAck func(ack *schedule.Acknowledgement)) bool {
	done := make(chan struct{})

	c.SetReadDeadline(time.Now().Add(readTimeout))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go func() {
		defer close(done)
		for {
			messageType, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("WebSocket error: %v", err)
				} else {
					log.Printf("Connection closed: %v", err)
				}
				return
			}

			c.SetReadDeadline(time.Now().Add(readTimeout))

			if messageType != websocket.TextMessage {
				log.Printf("Received unexpected message type: %d", messageType)
				continue
			}
			ack, err := schedule.ParseAcknowledgement(message)
			if err != nil {
				log.Printf("Failed to parse acknowledgement: %s", string(message))
				continue
			}
			handleAck(ack)
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Printf("Failed to send ping: %v", err)
			}
		case <-done:
			return true
		case <-ctx.Done():
			log.Println("Shutdown requested, closing connection...")
			err := c.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			if err != nil {
				log.Println("Error sending close message:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return false
		}
	}
}
