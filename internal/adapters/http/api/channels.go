package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	service "github.com/okian/facegate/internal/app"
	"github.com/okian/facegate/internal/domain/model"
	"github.com/okian/facegate/internal/recognition"
)

const frameJPEGQuality = 85

// ChannelDependencies defines the channel lifecycle and inspection calls.
type ChannelDependencies interface {
	StartChannels(ctx context.Context, cc service.ChannelConfig) error
	StopChannels(ctx context.Context) error
	Status() map[model.Channel]recognition.Status
	LatestDetection(ch model.Channel) (recognition.Result, error)
	LatestFrame(ch model.Channel) (model.Frame, error)
}

// ChannelsHandler handles channel requests.
type ChannelsHandler struct {
	deps ChannelDependencies
}

// NewChannelsHandler creates a new channels handler.
func NewChannelsHandler(deps ChannelDependencies) *ChannelsHandler {
	return &ChannelsHandler{deps: deps}
}

type channelsResponse struct {
	Status   string                               `json:"status"`
	Channels map[model.Channel]recognition.Status `json:"channels"`
}

type latestResponse struct {
	Channel model.Channel      `json:"channel"`
	Label   string             `json:"label"`
	Result  recognition.Result `json:"result"`
}

// HandleStart handles POST /api/channels/start with {"entry": "0", "exit": "1"}.
func (h *ChannelsHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	const op = "api.start_channels"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req service.ChannelConfig
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	req.Entry = strings.TrimSpace(req.Entry)
	req.Exit = strings.TrimSpace(req.Exit)

	if err := h.deps.StartChannels(r.Context(), req); err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, channelsResponse{Status: "started", Channels: h.deps.Status()})
}

// HandleStop handles POST /api/channels/stop requests.
func (h *ChannelsHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	const op = "api.stop_channels"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := h.deps.StopChannels(r.Context()); err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, channelsResponse{Status: "stopped", Channels: h.deps.Status()})
}

// HandleChannel handles GET /api/channels/{channel}/latest and
// GET /api/channels/{channel}/frame requests.
func (h *ChannelsHandler) HandleChannel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	name, action, ok := strings.Cut(strings.TrimPrefix(r.URL.Path, "/api/channels/"), "/")
	if !ok || name == "" || strings.Contains(action, "/") {
		http.NotFound(w, r)
		return
	}
	ch, err := model.ParseChannel(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	switch action {
	case "latest":
		h.latest(w, r, ch)
	case "frame":
		h.frame(w, r, ch)
	default:
		http.NotFound(w, r)
	}
}

func (h *ChannelsHandler) latest(w http.ResponseWriter, r *http.Request, ch model.Channel) {
	res, err := h.deps.LatestDetection(ch)
	if err != nil {
		writeServiceError(r.Context(), w, "api.latest_detection", err)
		return
	}
	writeJSON(w, http.StatusOK, latestResponse{Channel: ch, Label: res.Match.Label(), Result: res})
}

func (h *ChannelsHandler) frame(w http.ResponseWriter, r *http.Request, ch model.Channel) {
	const op = "api.latest_frame"
	frame, err := h.deps.LatestFrame(ch)
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, frame.Image, imaging.JPEG, imaging.JPEGQuality(frameJPEGQuality)); err != nil {
		writeServiceError(r.Context(), w, op, fmt.Errorf("%w: %w", ErrEncode, err))
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(frame.Seq, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
