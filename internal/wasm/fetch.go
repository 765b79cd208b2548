package wasm

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

// WasmContentType is the media type servers must send for streaming compilation.
const WasmContentType = "application/wasm"

// FetchConfig controls module downloads.
type FetchConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	RetryMax       int           `mapstructure:"retry_max"`
	RetryWaitMin   time.Duration `mapstructure:"retry_wait_min"`
	RetryWaitMax   time.Duration `mapstructure:"retry_wait_max"`
	MaxModuleBytes int64         `mapstructure:"max_module_bytes"`
}

// DefaultFetchConfig returns sensible defaults.
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		Timeout:        30 * time.Second,
		RetryMax:       3,
		RetryWaitMin:   500 * time.Millisecond,
		RetryWaitMax:   5 * time.Second,
		MaxModuleBytes: 64 << 20,
	}
}

// Fetcher downloads guest modules over HTTP with retries.
type Fetcher struct {
	client *retryablehttp.Client
	logger *zap.Logger
}

// NewFetcher creates a fetcher.
func NewFetcher(cfg FetchConfig, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "wasm-fetch"))

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		client.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		client.RetryWaitMax = cfg.RetryWaitMax
	}
	if cfg.Timeout > 0 {
		client.HTTPClient.Timeout = cfg.Timeout
	}
	client.Logger = &retryLogger{s: logger.Sugar()}

	return &Fetcher{client: client, logger: logger}
}

// Get fetches url.
func (f *Fetcher) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	return f.do(req, url)
}

// Do sends a caller-built request.
func (f *Fetcher) Do(ctx context.Context, r *http.Request) (*http.Response, error) {
	req, err := retryablehttp.FromRequest(r.WithContext(ctx))
	if err != nil {
		return nil, &FetchError{URL: r.URL.String(), Err: err}
	}
	return f.do(req, r.URL.String())
}

func (f *Fetcher) do(req *retryablehttp.Request, url string) (*http.Response, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	return resp, nil
}

// CompileResponse compiles the module carried by resp and closes its body.
//
// A response advertising application/wasm is compiled straight from the
// body. Any other content type is logged as a warning, buffered, sniffed
// and compiled anyway. The returned flag reports whether the streaming
// path was taken.
func (l *ModuleLoader) CompileResponse(ctx context.Context, name string, resp *http.Response) (*CompiledModule, bool, error) {
	defer resp.Body.Close()

	url := name
	if resp.Request != nil && resp.Request.URL != nil {
		url = resp.Request.URL.String()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, false, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	body := io.Reader(resp.Body)
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, false, &FetchError{URL: url, Err: fmt.Errorf("bad gzip body: %w", err)}
		}
		defer gz.Close()
		body = gz
	}

	if isWasmContentType(resp.Header.Get("Content-Type")) {
		compiled, err := l.CompileReader(ctx, name, body)
		return compiled, true, err
	}

	l.logger.Warn("Streaming compilation unavailable because the server does not serve Wasm with the application/wasm MIME type; falling back to buffered compilation",
		zap.String("url", url),
		zap.String("content_type", resp.Header.Get("Content-Type")),
	)

	data, err := l.readAll(body)
	if err != nil {
		return nil, false, &FetchError{URL: url, Err: err}
	}
	detected := mimetype.Detect(data)
	if !detected.Is(WasmContentType) {
		l.logger.Warn("Fetched body does not look like Wasm",
			zap.String("url", url),
			zap.String("detected", detected.String()),
		)
	}

	compiled, err := l.Compile(ctx, name, data)
	return compiled, false, err
}

func isWasmContentType(header string) bool {
	if header == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return false
	}
	return mediaType == WasmContentType
}

// retryLogger routes retryablehttp logs to zap.
type retryLogger struct {
	s *zap.SugaredLogger
}

func (l *retryLogger) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }
func (l *retryLogger) Info(msg string, kv ...any)  { l.s.Debugw(msg, kv...) }
func (l *retryLogger) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l *retryLogger) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
