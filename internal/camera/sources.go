package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/straja-ai/ulap/internal/redact"
)

const maxFrameBytes = 32 << 20

// HTTPSource reads JPEG snapshots from a network camera's snapshot URL.
type HTTPSource struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewHTTPSource returns a source polling url. Redirects are capped at 3.
func NewHTTPSource(url string, headers map[string]string) (*HTTPSource, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("camera url is empty")
	}
	hdr := make(map[string]string, len(headers))
	for k, v := range headers {
		hdr[k] = v
	}
	return &HTTPSource{
		url:     url,
		headers: hdr,
		client: &http.Client{
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return errors.New("too many redirects")
				}
				return nil
			},
		},
	}, nil
}

func (s *HTTPSource) Name() string { return "http:" + redact.URL(s.url) }

// Open checks that the camera answers before the session goes live.
func (s *HTTPSource) Open(ctx context.Context) (Device, error) {
	dev := &httpDevice{src: s}
	openCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := dev.ReadFrame(openCtx); err != nil {
		return nil, err
	}
	return dev, nil
}

type httpDevice struct {
	src *HTTPSource
}

func (d *httpDevice) ReadFrame(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.src.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range d.src.headers {
		req.Header.Set(k, v)
	}

	resp, err := d.src.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("snapshot content type %q", ct)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) > maxFrameBytes {
		return nil, fmt.Errorf("snapshot exceeds %d bytes", maxFrameBytes)
	}
	return data, nil
}

func (d *httpDevice) Close() error { return nil }

// FileSource reads the frame an external grabber keeps rewriting at path.
type FileSource struct {
	path string
}

// NewFileSource returns a source reading path.
func NewFileSource(path string) (*FileSource, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("camera path is empty")
	}
	return &FileSource{path: path}, nil
}

func (s *FileSource) Name() string { return "file:" + s.path }

func (s *FileSource) Open(context.Context) (Device, error) {
	if _, err := os.Stat(s.path); err != nil {
		return nil, err
	}
	return &fileDevice{path: s.path}, nil
}

type fileDevice struct {
	path string
}

func (d *fileDevice) ReadFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(d.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxFrameBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxFrameBytes {
		return nil, fmt.Errorf("frame exceeds %d bytes", maxFrameBytes)
	}
	return data, nil
}

func (d *fileDevice) Close() error { return nil }
