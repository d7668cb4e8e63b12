package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"denticheck-server/internal/domain/detection"
	apperrors "denticheck-server/internal/platform/errors"
	"denticheck-server/internal/platform/logging"
)

// HTTPConfig configures a remote inference server.
type HTTPConfig struct {
	Endpoint string
	// Threshold is forwarded as the server-side confidence floor; the
	// detector applies its own threshold regardless.
	Threshold float64
	Timeout   time.Duration
	Probe     bool
	Client    *http.Client
	Logger    *logging.Logger
}

// HTTPBackend posts the image as multipart "file" to an inference server
// that answers {"boxes":[{"class_id","confidence","xywhn":[cx,cy,w,h]}]}.
type HTTPBackend struct {
	endpoint  string
	threshold float64
	client    *http.Client
	logger    *logging.Logger
}

type inferResponse struct {
	Boxes []struct {
		ClassID    int       `json:"class_id"`
		Confidence float64   `json:"confidence"`
		XYWHN      []float64 `json:"xywhn"`
	} `json:"boxes"`
}

// NewHTTPBackend validates the endpoint and, when Probe is set, requires
// GET <scheme>://<host>/health to answer 2xx.
func NewHTTPBackend(ctx context.Context, cfg HTTPConfig) (*HTTPBackend, error) {
	const op = "backend.http.new"
	u, err := url.Parse(strings.TrimSpace(cfg.Endpoint))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, apperrors.New(apperrors.KindModelUnavailable, op, fmt.Sprintf("invalid inference endpoint %q", cfg.Endpoint))
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	b := &HTTPBackend{
		endpoint:  u.String(),
		threshold: cfg.Threshold,
		client:    client,
		logger:    cfg.Logger,
	}
	if cfg.Probe {
		if err := b.probe(ctx, u); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *HTTPBackend) Name() string { return "http" }

func (b *HTTPBackend) Close() error { return nil }

func (b *HTTPBackend) probe(ctx context.Context, endpoint *url.URL) error {
	const op = "backend.http.probe"
	health := url.URL{Scheme: endpoint.Scheme, Host: endpoint.Host, Path: "/health"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, health.String(), nil)
	if err != nil {
		return apperrors.Wrap(apperrors.KindModelUnavailable, op, "build probe", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.KindModelUnavailable, op, "inference server unreachable", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperrors.New(apperrors.KindModelUnavailable, op, fmt.Sprintf("inference server unhealthy: status %d", resp.StatusCode))
	}
	b.logger.InfoTag("DETECT", "inference server healthy at %s", health.Host)
	return nil
}

func (b *HTTPBackend) Infer(ctx context.Context, imagePath string) ([]detection.Prediction, error) {
	const op = "backend.http.infer"
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInference, op, "read image", err)
	}

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	part, err := form.CreateFormFile("file", filepath.Base(imagePath))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInference, op, "build request", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInference, op, "build request", err)
	}
	if err := form.WriteField("conf", strconv.FormatFloat(b.threshold, 'f', -1, 64)); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInference, op, "build request", err)
	}
	if err := form.Close(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInference, op, "build request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInference, op, "build request", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInference, op, "inference request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInference, op, "read response", err)
	}
	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, apperrors.New(apperrors.KindModelUnavailable, op, "inference server has no model loaded")
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, apperrors.New(apperrors.KindInference, op, fmt.Sprintf("inference server returned status %d", resp.StatusCode))
	}

	var parsed inferResponse
	if err := sonic.Unmarshal(raw, &parsed); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInference, op, "decode response", err)
	}

	preds := make([]detection.Prediction, 0, len(parsed.Boxes))
	for i, box := range parsed.Boxes {
		if len(box.XYWHN) != 4 {
			return nil, apperrors.New(apperrors.KindInference, op, fmt.Sprintf("box %d has %d coordinates", i, len(box.XYWHN)))
		}
		preds = append(preds, detection.Prediction{
			ClassID:    box.ClassID,
			Confidence: box.Confidence,
			Box: detection.BoundingBox{
				X: box.XYWHN[0],
				Y: box.XYWHN[1],
				W: box.XYWHN[2],
				H: box.XYWHN[3],
			},
		})
	}
	return preds, nil
}
