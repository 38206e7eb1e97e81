// Command client is a small feed watcher: it dials the trading core's
// websocket endpoint, joins the requested rooms and prints every frame
// it receives.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	server := flag.String("server", "127.0.0.1:8080", "address of the trading core")
	userID := flag.String("user", "", "authenticated user id (forwarded by the auth layer)")
	rooms := flag.String("rooms", "", "comma-separated rooms to join (bond:<id>, user:<id>)")
	flag.Parse()

	u := url.URL{Scheme: "ws", Host: *server, Path: "/ws"}
	if *userID != "" {
		u.RawQuery = "user_id=" + url.QueryEscape(*userID)
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("dial %s: %v", u.String(), err)
	}
	defer conn.Close()
	fmt.Printf("connected to %s\n", u.String())

	for _, room := range strings.Split(*rooms, ",") {
		room = strings.TrimSpace(room)
		if room == "" {
			continue
		}
		join, _ := json.Marshal(map[string]string{"type": "join_room", "room": room})
		if err := conn.WriteMessage(websocket.TextMessage, join); err != nil {
			log.Fatalf("join %s: %v", room, err)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				log.Printf("connection lost: %v", err)
				return
			}
			fmt.Println(string(frame))
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ping, _ := json.Marshal(map[string]any{"type": "ping", "timestamp": time.Now().UnixMilli()})
			if err := conn.WriteMessage(websocket.TextMessage, ping); err != nil {
				return
			}
		case <-interrupt:
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
