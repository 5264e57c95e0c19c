package overlay

import (
	"encoding/json"
	"errors"
	"image/jpeg"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const maxUploadMemory = 32 << 20

// Handler exposes the viewer's controls over HTTP using go-chi.
type Handler struct {
	viewer      *Viewer
	log         *slog.Logger
	jpegQuality int
	upgrader    websocket.Upgrader
	livePoll    time.Duration
}

// NewHandler returns a Handler driving viewer. jpegQuality outside 1-100
// falls back to the encoder default.
func NewHandler(viewer *Viewer, log *slog.Logger, jpegQuality int) *Handler {
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = jpeg.DefaultQuality
	}
	return &Handler{
		viewer:      viewer,
		log:         log,
		jpegQuality: jpegQuality,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		livePoll: livePollInterval,
	}
}

// Routes mounts the viewer endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.Recoverer)
		r.Post("/upload", h.Upload)
		r.Post("/pause", h.Pause)
		r.Post("/halftime", h.Halftime)
		r.Get("/state", h.State)
		r.Get("/frame.jpg", h.Frame)
		r.Get("/ws", h.Live)
	})
}

// Upload handles POST /upload with multipart fields "file" and "direction".
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		h.log.Debug("invalid upload form", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	direction, err := ParseDirection(r.FormValue("direction"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	u := Upload{Direction: direction}
	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		u.File = file
		u.Name = header.Filename
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		h.log.Debug("invalid upload file", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	filename, err := h.viewer.Upload(r.Context(), u)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoFile):
			h.writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		default:
			h.log.Error("upload failed", slog.String("error", err.Error()))
			h.writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
		}
		return
	}

	h.writeJSON(w, http.StatusOK, uploadBody{Filename: filename})
}

// Pause handles POST /pause.
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	st := h.viewer.TogglePause()
	h.log.Info("pause toggled", slog.Bool("paused", st.Paused))
	h.writeJSON(w, http.StatusOK, st)
}

// Halftime handles POST /halftime.
func (h *Handler) Halftime(w http.ResponseWriter, r *http.Request) {
	if _, err := h.viewer.Halftime(r.Context()); err != nil {
		switch {
		case errors.Is(err, ErrMatchFinished), errors.Is(err, ErrTransitionInFlight), errors.Is(err, ErrSuperseded):
			h.log.Info("halftime rejected", slog.String("error", err.Error()))
			h.writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
		default:
			h.log.Error("halftime failed", slog.String("error", err.Error()))
			h.writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
		}
		return
	}
	h.writeJSON(w, http.StatusOK, h.viewer.State())
}

// State handles GET /state.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.viewer.State())
}

// Frame handles GET /frame.jpg, returning the last painted overlay.
func (h *Handler) Frame(w http.ResponseWriter, r *http.Request) {
	img, ok := h.viewer.Snapshot()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: h.jpegQuality}); err != nil {
		h.log.Debug("frame encode failed", slog.String("error", err.Error()))
	}
}

// Recoverer reports a panicking request to the viewer instead of letting it
// take the server down.
func (h *Handler) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				h.log.Error("handler panicked", slog.String("path", r.URL.Path), slog.Any("panic", v))
				h.viewer.ReportUnexpected(v)
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type errorBody struct {
	Error string `json:"error"`
}

type uploadBody struct {
	Filename string `json:"filename"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug("response encode failed", slog.String("error", err.Error()))
	}
}
