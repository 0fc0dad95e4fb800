package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"income-screener/internal/domain"
	"income-screener/internal/infrastructure/logger"
)

const (
	DefaultInterval = 5 * time.Second
	writeWait       = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboard is served from a different origin
	},
}

// Handler streams the latest RunSnapshot to dashboard clients: once on connect,
// on every interval tick, and immediately when a new run is published.
type Handler struct {
	store    domain.LatestPicksStore
	interval time.Duration
	log      *logger.Logger

	mu   sync.Mutex
	subs map[chan domain.RunSnapshot]struct{}
}

func NewHandler(store domain.LatestPicksStore, interval time.Duration, log *logger.Logger) *Handler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Handler{
		store:    store,
		interval: interval,
		log:      log,
		subs:     make(map[chan domain.RunSnapshot]struct{}),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates := h.subscribe()
	defer h.unsubscribe(updates)

	h.log.Debugw("Dashboard client connected", "remote", r.RemoteAddr, "clients", h.Clients())

	// Reads only to notice the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := h.pushLatest(r.Context(), conn); err != nil {
		return
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := h.pushLatest(r.Context(), conn); err != nil {
				return
			}
		case snap := <-updates:
			if err := write(conn, snap); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (h *Handler) pushLatest(ctx context.Context, conn *websocket.Conn) error {
	snap, err := h.store.LatestSnapshot(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		h.log.Warnw("Failed to load latest snapshot", "error", err)
		return nil
	}
	return write(conn, snap)
}

func write(conn *websocket.Conn, snap domain.RunSnapshot) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(snap)
}

// Publish hands snap to every connected client without blocking. A client that
// has not consumed the previous update only keeps the newest one.
func (h *Handler) Publish(snap domain.RunSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (h *Handler) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Handler) subscribe() chan domain.RunSnapshot {
	ch := make(chan domain.RunSnapshot, 1)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Handler) unsubscribe(ch chan domain.RunSnapshot) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// PublishingStore saves snapshots to the underlying store and then pushes
// them to connected clients.
type PublishingStore struct {
	domain.LatestPicksStore
	Hub *Handler
}

func (s PublishingStore) SaveSnapshot(ctx context.Context, snap domain.RunSnapshot) error {
	if err := s.LatestPicksStore.SaveSnapshot(ctx, snap); err != nil {
		return err
	}
	s.Hub.Publish(snap)
	return nil
}
