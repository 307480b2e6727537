// Package preview pushes workspace change events to browser previews over a
// websocket.
package preview

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/starford/patto/internal/notify"
)

// Source hands out event subscriptions.
type Source interface {
	Subscribe() *notify.Subscription
	Unsubscribe(*notify.Subscription)
}

// Handler upgrades GET /ws and streams every event as one JSON text frame.
type Handler struct {
	src          Source
	logger       *slog.Logger
	writeTimeout time.Duration
	origins      []string
}

// NewHandler creates a preview handler. origins lists extra host patterns
// allowed to connect cross-origin.
func NewHandler(src Source, logger *slog.Logger, origins ...string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{src: src, logger: logger, writeTimeout: 5 * time.Second, origins: origins}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Warn("preview: accept failed", slog.String("error", err.Error()))
		return
	}
	defer c.CloseNow()

	// Clients never send; CloseRead handles pings and notices disconnects.
	ctx := c.CloseRead(r.Context())

	sub := h.src.Subscribe()
	defer h.src.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				_ = c.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := h.write(ctx, c, ev); err != nil {
				h.logger.Debug("preview: client gone", slog.String("error", err.Error()))
				return
			}
		}
	}
}

func (h *Handler) write(ctx context.Context, c *websocket.Conn, ev notify.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return c.Write(ctx, websocket.MessageText, payload)
}
