package events

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"call-transcriber-go/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Streamer pushes bus events to websocket clients.
type Streamer struct {
	bus      *Bus
	upgrader websocket.Upgrader
	log      *logrus.Entry
}

func NewStreamer(bus *Bus, log *logrus.Entry) *Streamer {
	return &Streamer{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: logger.Component(log, "events.ws"),
	}
}

// ServeHTTP upgrades the connection, replays events after ?since=N and then
// streams new ones until the client goes away.
func (s *Streamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithField("error", err.Error()).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Subscribe before replaying so nothing published in between is lost.
	live, cancel := s.bus.Subscribe(128)
	defer cancel()

	last := since
	for _, ev := range s.bus.Since(since) {
		if err := s.write(conn, ev); err != nil {
			return
		}
		last = ev.Seq
	}

	done := make(chan struct{})
	go s.readPump(conn, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-live:
			if !ok {
				return
			}
			if ev.Seq <= last {
				continue
			}
			if err := s.write(conn, ev); err != nil {
				return
			}
			last = ev.Seq
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Streamer) write(conn *websocket.Conn, ev Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(ev); err != nil {
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			s.log.WithField("error", err.Error()).Debug("websocket write failed")
		}
		return err
	}
	return nil
}

// readPump drains client frames so pongs and close frames are processed.
func (s *Streamer) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.WithField("error", err.Error()).Debug("websocket closed")
			}
			return
		}
	}
}
