// Package detector calls an external face embedding service over HTTP.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/okian/facegate/internal/domain/model"
)

const (
	defaultBaseURL     = "http://localhost:8000"
	defaultMaxSide     = 640
	defaultJPEGQuality = 90
	defaultTimeout     = 10 * time.Second
	faceEndpoint       = "/embed/face"
	maxResponseBytes   = 8 << 20
)

// faceDetection is one entry of the service reply. BBox is [x1, y1, x2, y2]
// in the pixels of the uploaded image.
type faceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float64 `json:"embedding"`
	BBox      []float64 `json:"bbox"`
	DetScore  float64   `json:"det_score"`
}

type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// Client posts JPEG frames to {baseURL}/embed/face and returns faces with
// boxes in the coordinates of the original image.
type Client struct {
	baseURL  string
	client   *http.Client
	maxSide  int
	quality  int
	minScore float64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithMaxSide downsizes frames whose longer side exceeds n before upload.
// Zero disables resizing.
func WithMaxSide(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxSide = n
		}
	}
}

// WithJPEGQuality sets the upload encoding quality (1-100).
func WithJPEGQuality(q int) Option {
	return func(c *Client) {
		if q >= 1 && q <= 100 {
			c.quality = q
		}
	}
}

// WithMinScore drops detections whose det_score is below s.
func WithMinScore(s float64) Option {
	return func(c *Client) {
		c.minScore = s
	}
}

// New creates a Client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
		maxSide: defaultMaxSide,
		quality: defaultJPEGQuality,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Detect uploads img and returns every face found, in service order.
func (c *Client) Detect(ctx context.Context, img image.Image) ([]model.Face, error) {
	if img == nil {
		return nil, ErrNilImage
	}

	upload, scale := c.prepare(img)
	var jpg bytes.Buffer
	if err := imaging.Encode(&jpg, upload, imaging.JPEG, imaging.JPEGQuality(c.quality)); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	body, err := c.postMultipartImage(ctx, faceEndpoint, jpg.Bytes())
	if err != nil {
		return nil, err
	}

	var resp faceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResponse, err)
	}

	faces := make([]model.Face, 0, len(resp.Faces))
	for _, d := range resp.Faces {
		if len(d.BBox) != 4 {
			return nil, fmt.Errorf("%w: face %d has %d bbox values", ErrResponse, d.FaceIndex, len(d.BBox))
		}
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("%w: face %d has no embedding", ErrResponse, d.FaceIndex)
		}
		if d.DetScore < c.minScore {
			continue
		}
		box := model.Box{
			Left:   int(d.BBox[0]),
			Top:    int(d.BBox[1]),
			Right:  int(d.BBox[2]),
			Bottom: int(d.BBox[3]),
		}
		faces = append(faces, model.Face{Box: box.Scale(scale), Embedding: d.Embedding})
	}
	return faces, nil
}

// prepare shrinks img to fit maxSide and returns the factor that maps
// upload coordinates back to the original.
func (c *Client) prepare(img image.Image) (image.Image, float64) {
	b := img.Bounds()
	longest := max(b.Dx(), b.Dy())
	if c.maxSide <= 0 || longest <= c.maxSide {
		return img, 1
	}
	small := imaging.Fit(img, c.maxSide, c.maxSide, imaging.Lanczos)
	return small, float64(longest) / float64(max(small.Bounds().Dx(), small.Bounds().Dy()))
}

func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequest, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequest, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrRequest, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrRequest, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
