package web

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"navcore/internal/geo"
	"navcore/internal/nav"
	"navcore/internal/orientation"
)

const (
	streamWriteWait  = 5 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API is served to a local display client on the same device.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamMessage is one frame on /api/stream. Data is a NavigationView for
// "navigation" and an orientation.Snapshot for "compass".
type StreamMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (a *api) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	navCh, cancelNav := a.Nav.Subscribe(8)
	defer cancelNav()
	var compassCh <-chan orientation.Estimate
	if a.Compass != nil {
		ch, cancel := a.Compass.Subscribe(1)
		defer cancel()
		compassCh = ch
	}

	// The read side only services control frames and notices the close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(1024)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	interval := a.StreamInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	flush := time.NewTicker(interval)
	defer flush.Stop()
	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	send := func(m StreamMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(m); err != nil {
			log.Printf("web stream write failed remote=%s: %v", r.RemoteAddr, err)
			return false
		}
		return true
	}

	if !send(StreamMessage{Type: "navigation", Data: a.navView(a.Nav.State())}) {
		return
	}

	// Compass estimates can arrive at sensor rate; only the latest is sent
	// per flush tick.
	compassDirty := false
	for {
		select {
		case <-done:
			return
		case st, ok := <-navCh:
			if !ok {
				return
			}
			if !send(StreamMessage{Type: "navigation", Data: a.navView(st)}) {
				return
			}
		case _, ok := <-compassCh:
			if !ok {
				compassCh = nil
				continue
			}
			compassDirty = true
		case <-flush.C:
			if !compassDirty {
				continue
			}
			compassDirty = false
			if !send(StreamMessage{Type: "compass", Data: a.Compass.Snapshot()}) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

func (a *api) navView(st nav.State) NavigationView {
	var pos *geo.Point
	if p, ok := a.Status.Position(); ok {
		pos = &p
	}
	return navigationView(st, pos)
}
