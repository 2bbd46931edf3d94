package stream

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

// Tick is one streamed price update.
type Tick struct {
	Instrument string    `json:"instrument"`
	Bid        float64   `json:"bid"`
	Ask        float64   `json:"ask"`
	Time       time.Time `json:"time"`
}

// PriceStream maintains a websocket tick feed with automatic reconnect. It
// fans ticks into a buffered channel; slow consumers drop ticks rather than
// stalling the read pump.
type PriceStream struct {
	url         string
	instruments []string

	ticks chan Tick

	readTimeout  time.Duration
	writeTimeout time.Duration
	backoffMax   time.Duration
}

func NewPriceStream(url string, instruments []string) *PriceStream {
	return &PriceStream{
		url:          url,
		instruments:  instruments,
		ticks:        make(chan Tick, 1024),
		readTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
		backoffMax:   30 * time.Second,
	}
}

// Ticks is the consumer side of the feed.
func (s *PriceStream) Ticks() <-chan Tick {
	return s.ticks
}

// Run dials, subscribes and pumps until the context is cancelled,
// reconnecting with capped backoff on any failure.
func (s *PriceStream) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if err := s.session(ctx); err != nil {
			if ctx.Err() != nil {
				close(s.ticks)
				return
			}
			log.Printf("[stream] connection lost: %v, retrying in %s", err, backoff)
			select {
			case <-ctx.Done():
				close(s.ticks)
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > s.backoffMax {
				backoff = s.backoffMax
			}
			continue
		}
		backoff = time.Second
	}
}

func (s *PriceStream) session(ctx context.Context) error {
	log.Printf("[stream] connecting to %s", s.url)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Println("[stream] connected")

	// Close the connection when the context ends so ReadJSON unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	sub := map[string]interface{}{
		"type":        "subscribe",
		"instruments": s.instruments,
	}
	conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	for {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var t Tick
		if err := json.Unmarshal(raw, &t); err != nil || t.Instrument == "" {
			continue
		}
		if t.Time.IsZero() {
			t.Time = time.Now().UTC()
		}
		select {
		case s.ticks <- t:
		default:
		}
	}
}
