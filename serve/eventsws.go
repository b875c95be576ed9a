package serve

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"xray/video"
	"xray/video/process"
)

const (
	// Time allowed to write message to the client
	writeWait  = 10 * time.Second
	pingPeriod = 10 * time.Second

	clientBacklog = 16
)

type Event struct {
	Type       string
	SessionID  string
	Prediction *ResultEntry `json:",omitempty"`
}

// EventsUpdater pushes recording events to connected websocket clients.
// A client that falls behind misses events rather than stalling the
// pipeline.
type EventsUpdater struct {
	upgrader websocket.Upgrader
	cs       map[chan []byte]bool
	addc     chan chan []byte
	delc     chan chan []byte
	notify   chan []byte
	count    chan chan int
}

func NewEventsUpdater() *EventsUpdater {
	m := &EventsUpdater{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		cs:     make(map[chan []byte]bool),
		addc:   make(chan chan []byte),
		delc:   make(chan chan []byte),
		notify: make(chan []byte),
		count:  make(chan chan int),
	}
	go func() {
		for {
			select {
			case c := <-m.addc:
				m.cs[c] = true
			case c := <-m.delc:
				delete(m.cs, c)
			case r := <-m.count:
				r <- len(m.cs)
			case msg := <-m.notify:
				for c := range m.cs {
					select {
					case c <- msg:
					default:
						log.Debug("Websocket client is behind, dropping event")
					}
				}
			}
		}
	}()
	return m
}

func (m *EventsUpdater) publish(e *Event) {
	js, err := json.Marshal(e)
	if err != nil {
		log.Errorf("Failed to encode event: %v", err)
		return
	}
	m.notify <- js
}

// Clients returns the number of connected clients.
func (m *EventsUpdater) Clients() int {
	r := make(chan int)
	m.count <- r
	return <-r
}

func (m *EventsUpdater) RecordingStarted(id string) {
	m.publish(&Event{Type: "started", SessionID: id})
}

func (m *EventsUpdater) PredictionAdded(id string, index int, p process.Prediction) {
	m.publish(&Event{Type: "prediction", SessionID: id, Prediction: toResultEntry(index, p)})
}

func (m *EventsUpdater) ResultsReady(r *video.Results) {
	m.publish(&Event{Type: "results", SessionID: r.SessionID})
}

func (m *EventsUpdater) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if _, ok := err.(websocket.HandshakeError); !ok {
			log.WithField("addr", r.RemoteAddr).Errorf("Websocket handshake failed for event stream: %v", err)
		}
		return
	}
	go m.serve(ws)
}

func (m *EventsUpdater) serve(ws *websocket.Conn) {
	clog := log.WithField("addr", ws.RemoteAddr())
	clog.Info("connected to events socket")
	defer func() {
		ws.Close()
		clog.Info("disconnected from events socket")
	}()
	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	notifyc := make(chan []byte, clientBacklog)
	m.addc <- notifyc
	defer func() { m.delc <- notifyc }()

	// Incoming messages are ignored, but reading processes control frames
	// and notices a closed connection.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg := <-notifyc:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-pingTicker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
