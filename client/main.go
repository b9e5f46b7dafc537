package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.WriteJSON(envelope{Event: event, Data: raw})
}

const usage = `commands:
  rooms <tier>          watch a tier's table list
  join <tier> [table]   sit down
  spectate <tier> <table>
  ready | unready
  move <json>           e.g. move {"action":"pass"}
  next                  agree to a rematch
  leave
  match | cancel        auto match queue
  ping`

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	player := flag.String("player", "", "player id")
	name := flag.String("name", "", "display name")
	gameType := flag.String("game", "relay", "game type")
	flag.Parse()
	if *player == "" {
		log.Fatal("-player is required")
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	q := url.Values{"playerId": {*player}}
	if *name != "" {
		q.Set("name", *name)
	}
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws", RawQuery: q.Encode()}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			var env envelope
			if err := c.ReadJSON(&env); err != nil {
				log.Println("Read error:", err)
				return
			}
			log.Printf("<- %s %s", env.Event, string(env.Data))
		}
	}()

	lines := make(chan string)
	go func() {
		reader := bufio.NewScanner(os.Stdin)
		for reader.Scan() {
			lines <- strings.TrimSpace(reader.Text())
		}
		close(lines)
	}()

	log.Println(usage)

	// Write loop
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case text, ok := <-lines:
			if !ok {
				return
			}
			if text == "" {
				continue
			}
			event, data, ok := parse(*gameType, text)
			if !ok {
				log.Println(usage)
				continue
			}
			if err := send(c, event, data); err != nil {
				log.Println("Write error:", err)
				return
			}
			log.Printf("-> %s", event)
		}
	}
}

func parse(gameType, text string) (string, any, bool) {
	fields := strings.Fields(text)
	arg := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}
	switch fields[0] {
	case "rooms":
		return "get_rooms", map[string]string{"gameType": gameType, "tierId": arg(1)}, true
	case "join":
		return gameType + "_join", map[string]string{"tierId": arg(1), "tableId": arg(2)}, true
	case "spectate":
		return gameType + "_spectate", map[string]string{"tierId": arg(1), "tableId": arg(2)}, true
	case "leave":
		return gameType + "_leave", struct{}{}, true
	case "ready":
		return "player_ready", struct{}{}, true
	case "unready":
		return "player_unready", struct{}{}, true
	case "next":
		return "next_round", struct{}{}, true
	case "move":
		raw := strings.TrimSpace(strings.TrimPrefix(text, "move"))
		if !json.Valid([]byte(raw)) {
			return "", nil, false
		}
		return gameType + "_move", json.RawMessage(raw), true
	case "match":
		return "auto_match", map[string]string{"gameType": gameType}, true
	case "cancel":
		return "cancel_match", map[string]string{"gameType": gameType}, true
	case "ping":
		return "ping", struct{}{}, true
	}
	return "", nil, false
}
