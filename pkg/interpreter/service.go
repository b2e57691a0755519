// Package interpreter subscribes to an exporter's live websocket stream.
package interpreter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NotCoffee418/smartmeter_exporter/pkg/metrics"
)

var ErrMaxRetries = errors.New("max retries reached")

const (
	maxRetries     = 10
	baseRetryDelay = 2 * time.Second
	maxRetryDelay  = 60 * time.Second

	// DefaultReadTimeout covers twice the exporter's keepalive interval.
	DefaultReadTimeout = 10 * time.Second
)

// StartListener manages the websocket connection and calls funcToCall for each reading.
// Any frame from the exporter, pings and pongs included, keeps the link alive for
// another readTimeout; zero means DefaultReadTimeout.
// It reconnects with exponential backoff and returns nil once ctx is cancelled.
func StartListener(
	ctx context.Context,
	host string,
	readTimeout time.Duration,
	logger *slog.Logger,
	funcToCall func(reading *metrics.Reading),
) error {
	if logger == nil {
		logger = slog.Default()
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	u := url.URL{Scheme: "ws", Host: host, Path: "/ws"}
	retryCount := 0

	for {
		if retryCount > 0 {
			// Calculate retry delay with exponential backoff
			retryDelay := min(time.Duration(1<<(retryCount-1))*baseRetryDelay, maxRetryDelay)
			logger.Info("retrying connection", "delay", retryDelay, "attempt", retryCount+1, "max", maxRetries)
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return nil
			}
		}

		logger.Info("connecting", "url", u.String())
		dialer := *websocket.DefaultDialer
		dialer.HandshakeTimeout = 10 * time.Second
		c, _, err := dialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("connection failed", "err", err)
			retryCount++
			if retryCount >= maxRetries {
				return fmt.Errorf("%w (%d): %w", ErrMaxRetries, maxRetries, err)
			}
			continue
		}

		logger.Info("connected, accepting meter readings")
		retryCount = 0

		connectionBroken := handleConnection(ctx, c, readTimeout, logger, funcToCall)
		c.Close()
		if !connectionBroken {
			// Clean shutdown requested
			return nil
		}

		logger.Warn("connection lost, will retry")
		retryCount = 1
	}
}

// handleConnection returns true when the connection broke and false on shutdown.
func handleConnection(
	ctx context.Context,
	c *websocket.Conn,
	readTimeout time.Duration,
	logger *slog.Logger,
	funcToCall func(reading *metrics.Reading),
) bool {
	done := make(chan struct{})

	extend := func() { c.SetReadDeadline(time.Now().Add(readTimeout)) }
	extend()
	c.SetPongHandler(func(string) error {
		extend()
		return nil
	})
	c.SetPingHandler(func(appData string) error {
		extend()
		err := c.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	go func() {
		defer close(done)
		for {
			messageType, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
					logger.Warn("websocket error", "err", err)
				} else {
					logger.Info("connection closed", "err", err)
				}
				return
			}

			extend()

			if messageType != websocket.TextMessage {
				logger.Debug("ignoring message", "type", messageType)
				continue
			}
			if reading := metrics.ReadingFromJsonBytes(message); reading != nil {
				funcToCall(reading)
			} else {
				logger.Warn("failed to parse meter reading", "message", string(message))
			}
		}
	}()

	// All client data writes happen in this goroutine. Our own pings get a
	// pong back from exporters that send no keepalive of their own.
	ticker := time.NewTicker(readTimeout / 3)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return true
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				logger.Warn("failed to send ping", "err", err)
			}
		case <-ctx.Done():
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				logger.Debug("error sending close message", "err", err)
			}

			// Wait for close confirmation or timeout
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return false
		}
	}
}
