package acquire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"denticheck-server/internal/domain/image"
	"denticheck-server/internal/platform/config"
	apperrors "denticheck-server/internal/platform/errors"
	"denticheck-server/internal/platform/logging"
	"denticheck-server/internal/platform/observability"
)

// Acquirer turns an upload or a storage reference into a TempImage.
type Acquirer struct {
	storage  config.ObjectStorageConfig
	timeout  time.Duration
	client   *http.Client
	pipeline *image.Pipeline
	temp     *TempManager
	logger   *logging.Logger
}

// Options wires the acquirer's collaborators. Client defaults to a client
// without its own timeout; FetchTimeout bounds each request.
type Options struct {
	Storage      config.ObjectStorageConfig
	FetchTimeout time.Duration
	Client       *http.Client
	Pipeline     *image.Pipeline
	Temp         *TempManager
	Logger       *logging.Logger
}

func NewAcquirer(opts Options) (*Acquirer, error) {
	const op = "acquire.new"
	if opts.Pipeline == nil {
		return nil, apperrors.New(apperrors.KindConfig, op, "image pipeline is required")
	}
	if opts.Temp == nil {
		return nil, apperrors.New(apperrors.KindConfig, op, "temp manager is required")
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	return &Acquirer{
		storage:  opts.Storage,
		timeout:  opts.FetchTimeout,
		client:   opts.Client,
		pipeline: opts.Pipeline,
		temp:     opts.Temp,
		logger:   opts.Logger,
	}, nil
}

// FromUpload validates uploaded bytes and materializes them.
func (a *Acquirer) FromUpload(ctx context.Context, data []byte, filename string) (*TempImage, error) {
	const op = "acquire.upload"
	if len(data) == 0 {
		return nil, apperrors.New(apperrors.KindInvalidInput, op, "uploaded file is empty")
	}
	out, err := a.pipeline.ProcessBytes(data, declaredFormat(filename), "upload")
	if err != nil {
		return nil, err
	}
	format := out.Format
	if format == "" {
		format = filename
	}
	return a.temp.Acquire(out.Bytes, format)
}

// FromReference downloads the image named by imageURL, or by storageKey in
// the configured bucket when imageURL is empty, validates it and
// materializes it. There are no retries.
func (a *Acquirer) FromReference(ctx context.Context, storageKey, imageURL string) (*TempImage, error) {
	target, data, err := a.fetch(ctx, storageKey, imageURL)
	if err != nil {
		return nil, err
	}
	out, err := a.pipeline.ProcessBytes(data, declaredFormat(target.Path), "reference")
	if err != nil {
		return nil, err
	}
	return a.temp.Acquire(out.Bytes, out.Format)
}

// Fetch downloads a referenced image without validating its contents.
// The size cap still applies.
func (a *Acquirer) Fetch(ctx context.Context, storageKey, imageURL string) ([]byte, error) {
	_, data, err := a.fetch(ctx, storageKey, imageURL)
	return data, err
}

func (a *Acquirer) fetch(ctx context.Context, storageKey, imageURL string) (target *url.URL, data []byte, err error) {
	const op = "acquire.reference"
	ctx, end := observability.StartSpan(ctx, "acquire", "fetch")
	defer func() { end(err) }()

	raw := strings.TrimSpace(imageURL)
	if raw == "" {
		if strings.TrimSpace(storageKey) == "" {
			return nil, nil, apperrors.New(apperrors.KindInvalidInput, op, "storage_key or image_url is required")
		}
		raw = a.ComposeURL(storageKey)
	}
	target, perr := url.Parse(raw)
	if perr != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, nil, apperrors.New(apperrors.KindInvalidInput, op, fmt.Sprintf("unsupported image url %q", raw))
	}

	data, err = a.download(ctx, raw)
	if err != nil {
		return nil, nil, err
	}
	a.logger.DebugTag("ACQUIRE", "fetched %s (%d bytes)", redact(target), len(data))
	return target, data, nil
}

// ComposeURL builds <scheme>://<endpoint>/<bucket>/<storageKey>, with https
// when the storage is marked secure.
func (a *Acquirer) ComposeURL(storageKey string) string {
	scheme := "http"
	if a.storage.Secure {
		scheme = "https"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   a.storage.Endpoint,
		Path:   path.Join("/", a.storage.Bucket, strings.TrimLeft(storageKey, "/")),
	}
	return u.String()
}

func (a *Acquirer) download(ctx context.Context, target string) ([]byte, error) {
	const op = "acquire.fetch"
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidInput, op, "build request", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, classifyFetchError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, apperrors.New(apperrors.KindUpstreamFetch, op,
			fmt.Sprintf("image source returned status %d", resp.StatusCode))
	}

	maxSize := a.pipeline.MaxFileSize()
	if resp.ContentLength > maxSize {
		return nil, apperrors.New(apperrors.KindInvalidInput, op,
			fmt.Sprintf("image exceeds maximum size of %d bytes", maxSize))
	}

	buf := bytes.NewBuffer(make([]byte, 0, 64*1024))
	n, err := io.Copy(buf, io.LimitReader(resp.Body, maxSize+1))
	if err != nil {
		return nil, classifyFetchError(op, err)
	}
	if n > maxSize {
		return nil, apperrors.New(apperrors.KindInvalidInput, op,
			fmt.Sprintf("image exceeds maximum size of %d bytes", maxSize))
	}
	if n == 0 {
		return nil, apperrors.New(apperrors.KindUpstreamFetch, op, "image source returned an empty body")
	}
	return buf.Bytes(), nil
}

func classifyFetchError(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.Wrap(apperrors.KindUpstreamTimeout, op, "image fetch timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return apperrors.Wrap(apperrors.KindUpstreamFetch, op, "image fetch failed", err)
}

func declaredFormat(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if _, ok := knownExtensions[ext]; ok {
		return ext
	}
	return ""
}

// redact drops query strings, which often carry presigned credentials.
func redact(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	c.User = nil
	return c.String()
}
