package overlay

import (
	"log/slog"
	"net/http"
	"time"
)

const (
	livePollInterval = 200 * time.Millisecond
	liveWriteTimeout = 5 * time.Second
)

// Live handles GET /ws. It pushes the State projection to the browser every
// time it changes, so the page does not have to poll /state.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	// The client sends nothing; reading only notices when it goes away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.livePoll)
	defer ticker.Stop()

	var last State
	sent := false
	for {
		if st := h.viewer.State(); !sent || st != last {
			conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := conn.WriteJSON(st); err != nil {
				h.log.Debug("live state write failed", slog.String("error", err.Error()))
				return
			}
			last, sent = st, true
		}

		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
