package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"

	service "github.com/okian/facegate/internal/app"
	"github.com/okian/facegate/internal/domain/model"
)

// maxDetectBody bounds the base64 upload.
const maxDetectBody = 16 << 20

// DetectDependencies runs on-demand detection.
type DetectDependencies interface {
	Detect(ctx context.Context, img image.Image, ch model.Channel) (service.DetectResult, error)
}

// DetectHandler handles detection requests.
type DetectHandler struct {
	deps DetectDependencies
}

// NewDetectHandler creates a new detect handler.
func NewDetectHandler(deps DetectDependencies) *DetectHandler {
	return &DetectHandler{deps: deps}
}

type detectRequest struct {
	Image   string `json:"image"`
	Channel string `json:"channel"`
}

// decode accepts raw base64 or a data URL.
func (d detectRequest) decode() (image.Image, model.Channel, error) {
	var ch model.Channel
	if strings.TrimSpace(d.Channel) != "" {
		parsed, err := model.ParseChannel(d.Channel)
		if err != nil {
			return nil, "", err
		}
		ch = parsed
	}

	payload := strings.TrimSpace(d.Image)
	if _, rest, ok := strings.Cut(payload, ";base64,"); ok {
		payload = rest
	}
	if payload == "" {
		return nil, "", fmt.Errorf("%w: missing image", ErrBadRequest)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: image is not base64: %w", ErrBadRequest, err)
	}
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("%w: image: %w", ErrBadRequest, err)
	}
	return img, ch, nil
}

// HandleDetect handles POST /api/detect. Nothing is recorded.
func (h *DetectHandler) HandleDetect(w http.ResponseWriter, r *http.Request) {
	const op = "api.detect"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req detectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDetectBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	img, ch, err := req.decode()
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}

	res, err := h.deps.Detect(r.Context(), img, ch)
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
