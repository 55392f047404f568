package venue

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// backoffStart and backoffCap match original_source/data_fetcher/binance_ws.py's
// reconnect loop: start at 1s, double, cap at 30s.
const (
	backoffStart = 1 * time.Second
	backoffCap   = 30 * time.Second
)

// dialFunc opens a fresh WebSocket connection.
type dialFunc func(ctx context.Context) (*websocket.Conn, error)

// messageFunc handles one decoded WebSocket text/binary message.
type messageFunc func(data []byte) error

// runWithReconnect dials via dial, reads messages and hands each to onMessage,
// and reconnects with exponential backoff (capped) whenever the connection
// drops, until ctx is canceled.
func runWithReconnect(ctx context.Context, venue string, dial dialFunc, onMessage messageFunc) error {
	backoff := backoffStart
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, err := dial(ctx)
		if err != nil {
			log.Warn().Str("venue", venue).Err(err).Dur("retry_in", backoff).Msg("ws dial failed")
			if !sleepOrDone(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff)
			continue
		}

		backoff = backoffStart
		err = readLoop(ctx, conn, onMessage)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Str("venue", venue).Err(err).Dur("retry_in", backoff).Msg("ws connection lost, reconnecting")
		if !sleepOrDone(ctx, backoff) {
			return ctx.Err()
		}
		backoff = nextBackoff(backoff)
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, onMessage messageFunc) error {
	done := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				done <- err
				return
			}
			if err := onMessage(data); err != nil {
				log.Debug().Err(err).Msg("ws message decode error, dropping")
			}
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > backoffCap {
		return backoffCap
	}
	return next
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
