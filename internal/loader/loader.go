// Package loader fetches and validates serialized model payloads.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "mathlab/internal/errors"
	"mathlab/internal/model"
)

const (
	// DefaultTimeout bounds a single fetch.
	DefaultTimeout = 10 * time.Second
	// DefaultMaxBytes caps the payload body size.
	DefaultMaxBytes int64 = 64 << 20
)

// ErrFetch reports a payload that could not be retrieved.
var ErrFetch = apperrors.New(apperrors.CodePayloadFetchFailure, "model payload could not be fetched")

var tracer = otel.Tracer("mathlab/internal/loader")

// Config configures where and how a payload is fetched.
type Config struct {
	// Source is an http(s) URL, a file:// URL or a filesystem path.
	Source     string
	HTTPClient *http.Client
	// Timeout bounds the whole fetch. Negative disables it; zero means DefaultTimeout.
	Timeout  time.Duration
	MaxBytes int64
}

// Loader fetches a model payload. It does not retry.
type Loader struct {
	cfg Config
}

// New builds a loader, filling defaults.
func New(cfg Config) *Loader {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	cfg.Source = strings.TrimSpace(cfg.Source)
	return &Loader{cfg: cfg}
}

// Source returns the configured location.
func (l *Loader) Source() string {
	return l.cfg.Source
}

// Load fetches, decodes and validates the payload. Fetch problems are
// reported as PAYLOAD_FETCH_FAILURE, malformed documents as
// PAYLOAD_PARSE_FAILURE and inconsistent layers as SHAPE_MISMATCH.
func (l *Loader) Load(ctx context.Context) (*model.Payload, error) {
	ctx, span := tracer.Start(ctx, "loader.Load", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("model.source", l.cfg.Source))

	if l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
	}

	p, err := l.load(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperrors.CodeOf(err)))
		return nil, err
	}
	span.SetAttributes(
		attribute.String("model.architecture", p.Architecture),
		attribute.Int("model.input_size", p.InputSize),
		attribute.Int("model.layers", len(p.Layers)),
	)
	return p, nil
}

func (l *Loader) load(ctx context.Context) (*model.Payload, error) {
	if l.cfg.Source == "" {
		return nil, apperrors.New(apperrors.CodePayloadFetchFailure, "model source is required")
	}
	u, err := url.Parse(l.cfg.Source)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return l.fetchHTTP(ctx)
	}
	path := l.cfg.Source
	if err == nil && u.Scheme == "file" {
		path = u.Path
	}
	return l.readFile(ctx, path)
}

func (l *Loader) fetchHTTP(ctx context.Context) (*model.Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.cfg.Source, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodePayloadFetchFailure, "build model request", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := l.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodePayloadFetchFailure, "model request failed", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, err := io.ReadAll(io.LimitReader(res.Body, 4096))
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodePayloadFetchFailure, "read model error body", err)
		}
		return nil, apperrors.WithMetadata(apperrors.CodePayloadFetchFailure,
			fmt.Sprintf("model request status %d: %s", res.StatusCode, strings.TrimSpace(string(body))),
			map[string]string{"status": fmt.Sprint(res.StatusCode)})
	}
	return l.decode(ctx, res.Body)
}

func (l *Loader) readFile(ctx context.Context, path string) (*model.Payload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodePayloadFetchFailure, "open model file", err)
	}
	defer f.Close()
	return l.decode(ctx, f)
}

// decode buffers at most MaxBytes before parsing so a read failure is not
// mistaken for malformed JSON.
func (l *Loader) decode(ctx context.Context, r io.Reader) (*model.Payload, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.cfg.MaxBytes+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Join(ctxErr, err)
		}
		return nil, apperrors.Wrap(apperrors.CodePayloadFetchFailure, "read model payload", err)
	}
	if int64(len(data)) > l.cfg.MaxBytes {
		return nil, apperrors.New(apperrors.CodePayloadFetchFailure,
			fmt.Sprintf("model payload exceeds %d bytes", l.cfg.MaxBytes))
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodePayloadFetchFailure, "model fetch cancelled", err)
	}
	return model.ParsePayload(data)
}
