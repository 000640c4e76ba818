package web

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sensorWriteTimeout = 10 * time.Second
	sensorReadTimeout  = 60 * time.Second
	sensorMaxFrame     = 64 * 1024

	// Below sensorReadTimeout so an idle client's pongs keep the socket open
	sensorPingPeriod = sensorReadTimeout * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Phones on the local network connect from arbitrary origins
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SensorHandler streams device sensor frames into one session.
// GET /api/sessions/{id}/sensors (WebSocket upgrade)
//
// Every inbound SensorFrame gets one SensorReply. Frames for an unknown
// session close the connection; other errors are reported in the reply.
// The client is pinged every ping interval.
func SensorHandler(b Backend, ping time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, err := b.Session(id); err != nil {
			writeError(w, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WARN: sensor socket %s: upgrade: %v", id, err)
			return
		}
		defer conn.Close()

		conn.SetReadLimit(sensorMaxFrame)
		_ = conn.SetReadDeadline(time.Now().Add(sensorReadTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(sensorReadTimeout))
		})

		stopPing := make(chan struct{})
		defer close(stopPing)
		go pingLoop(conn, ping, stopPing)

		for {
			var frame SensorFrame
			if err := conn.ReadJSON(&frame); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("WARN: sensor socket %s: %v", id, err)
				}
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(sensorReadTimeout))

			reply, done := handleFrame(b, id, frame)
			_ = conn.SetWriteDeadline(time.Now().Add(sensorWriteTimeout))
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
			if done {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
					time.Now().Add(2*time.Second))
				return
			}
		}
	}
}

// pingLoop pings the client until stop closes or a ping fails.
// WriteControl may run alongside the handler's own writes.
func pingLoop(conn *websocket.Conn, every time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(sensorWriteTimeout)); err != nil {
				return
			}
		}
	}
}

// handleFrame applies one frame and reports whether the socket should close
func handleFrame(b Backend, id string, f SensorFrame) (SensorReply, bool) {
	reply := SensorReply{Type: f.Type}

	var err error
	switch f.Type {
	case "motion":
		reply.Triggered, err = b.Motion(id, f.X, f.Y, f.Z)
	case "magnitude":
		reply.Triggered, err = b.Magnitude(id, f.Value)
	case "transcript":
		reply.Triggered, err = b.Transcript(id, f.Text, f.Confidence)
	case "ack":
		_, err = b.Acknowledge(id)
	default:
		reply.Error = fmt.Sprintf("unknown frame type %q", f.Type)
		return reply, false
	}

	if err != nil {
		reply.Error = err.Error()
		if statusFor(err) == http.StatusNotFound {
			return reply, true
		}
	}

	snap, serr := b.Session(id)
	if serr != nil {
		return reply, true
	}
	reply.Tier = string(snap.Tier)
	return reply, snap.Tier.IsTerminal()
}
