package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/smarttraffic/console/internal/api/models"
	"github.com/smarttraffic/console/internal/notice"
)

const (
	streamWriteWait  = 5 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
	streamReadLimit  = 512
)

// StreamHandler pushes snapshots to websocket clients whenever intersections,
// violations or feeds change, and notices as they are raised.
type StreamHandler struct {
	traffic  Traffic
	feeds    Feeds
	notices  *notice.Center
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a new StreamHandler. feeds and notices may be nil.
func NewStreamHandler(t Traffic, feeds Feeds, notices *notice.Center, logger zerolog.Logger) *StreamHandler {
	return &StreamHandler{
		traffic: t,
		feeds:   feeds,
		notices: notices,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Stream handles GET /v1/stream. The first message is always a snapshot.
// Bursts of changes coalesce into one snapshot.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	trafficCh, stopTraffic := h.traffic.Subscribe()
	defer stopTraffic()

	var feedCh <-chan struct{}
	if h.feeds != nil {
		ch, stop := h.feeds.Subscribe()
		defer stop()
		feedCh = ch
	}

	var noticeCh <-chan notice.Notice
	if h.notices != nil {
		ch, stop := h.notices.Subscribe(16)
		defer stop()
		noticeCh = ch
	}

	closed := make(chan struct{})
	go h.readLoop(conn, closed)

	if err := h.write(conn, models.StreamMessage{Type: models.StreamSnapshot, Snapshot: h.snapshot()}); err != nil {
		return
	}

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		var msg models.StreamMessage
		select {
		case <-closed:
			return
		case <-trafficCh:
			msg = models.StreamMessage{Type: models.StreamSnapshot, Snapshot: h.snapshot()}
		case <-feedCh:
			msg = models.StreamMessage{Type: models.StreamSnapshot, Snapshot: h.snapshot()}
		case n, ok := <-noticeCh:
			if !ok {
				noticeCh = nil
				continue
			}
			msg = models.StreamMessage{Type: models.StreamNotice, Notice: &n}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
			continue
		}
		if err := h.write(conn, msg); err != nil {
			h.logger.Debug().Err(err).Msg("stream client went away")
			return
		}
	}
}

// readLoop drains client frames so control messages are processed, and
// closes closed when the connection ends.
func (h *StreamHandler) readLoop(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(streamReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *StreamHandler) write(conn *websocket.Conn, msg models.StreamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(msg)
}

func (h *StreamHandler) snapshot() *models.Snapshot {
	s := &models.Snapshot{
		Time:          models.Timestamp(time.Now()),
		Sync:          h.traffic.Status(),
		Intersections: h.traffic.Intersections(),
		Violations:    models.NewViolations(h.traffic.Violations()),
	}
	if h.feeds != nil {
		s.Feeds = h.feeds.States()
	}
	return s
}
