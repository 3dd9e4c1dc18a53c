// Command eventtail prints planning events from a running API.
//
//	eventtail [-url ws://localhost:8080/v1/events/ws] [-vehicle 3] [-run]
//
// With -run it triggers an assignment run after subscribing, which is handy
// for a quick end-to-end check.
package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	wsURL := flag.String("url", "ws://localhost:8080/v1/events/ws", "event stream endpoint")
	vehicle := flag.Int64("vehicle", 0, "only events for this vehicle")
	trigger := flag.Bool("run", false, "POST /v1/assignments/run once subscribed")
	flag.Parse()
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	c, _, err := websocket.DefaultDialer.Dial(*wsURL, nil)
	if err != nil {
		log.Fatal().Err(err).Str("url", *wsURL).Msg("dial")
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal().Err(err).Msg("init")
	}
	var pl json.RawMessage
	if *vehicle > 0 {
		pl, _ = json.Marshal(map[string]any{"vehicleId": *vehicle})
	}
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal().Err(err).Msg("subscribe")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Info().Err(err).Msg("stream closed")
				return
			}
			switch m.Type {
			case "ping":
				_ = c.WriteJSON(wsMessage{Type: "pong"})
			case "next":
				log.Info().RawJSON("event", m.Payload).Msg("event")
			default:
				log.Debug().Str("type", m.Type).RawJSON("payload", orNull(m.Payload)).Msg("control")
			}
		}
	}()

	if *trigger {
		if err := runAssignment(*wsURL); err != nil {
			log.Error().Err(err).Msg("trigger run")
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	select {
	case <-sig:
		_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	case <-done:
	}
}

// runAssignment posts to the run endpoint of the server behind wsURL.
func runAssignment(wsURL string) error {
	u, err := url.Parse(wsURL)
	if err != nil {
		return err
	}
	u.Scheme = strings.Replace(u.Scheme, "ws", "http", 1)
	u.Path = "/v1/assignments/run"
	resp, err := http.Post(u.String(), "application/json", nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	log.Info().Int("status", resp.StatusCode).Msg("assignment run requested")
	return nil
}

func orNull(b json.RawMessage) json.RawMessage {
	if len(b) == 0 {
		return json.RawMessage("null")
	}
	return b
}
