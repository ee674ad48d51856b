package data

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"
)

const (
	// DefaultTimeout bounds a single fetch, connect to last byte.
	DefaultTimeout = 10 * time.Second
	maxBodySize    = 500 * 1024 * 1024 // 500MB for large EPG files
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

type compression int

const (
	compressionNone compression = iota
	compressionGzip
	compressionXZ
)

// Fetcher downloads playlist and guide documents and returns their decoded
// bytes. It makes exactly one attempt per call.
type Fetcher struct {
	log         logrus.FieldLogger
	httpClient  *http.Client
	userAgent   string
	maxBodySize int64
}

// NewFetcher creates a fetcher. A zero timeout selects DefaultTimeout.
func NewFetcher(log logrus.FieldLogger, timeout time.Duration, userAgent string) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Fetcher{
		log: log.WithField("component", "fetcher"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		userAgent:   userAgent,
		maxBodySize: maxBodySize,
	}
}

// Fetch downloads url. Gzip and xz payloads are decompressed transparently,
// whether signalled by Content-Encoding, Content-Type, the URL suffix or the
// payload's magic bytes.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Kind: ErrNetwork, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	// Accept gzip encoding
	req.Header.Set("Accept-Encoding", "gzip")

	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	start := time.Now()

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Kind: ErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: url, Kind: ErrHTTPStatus, StatusCode: resp.StatusCode}
	}

	body := &errTracker{r: resp.Body}

	var reader io.Reader = body

	transportDecoded := false

	// Handle gzip encoding
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gzReader, gzErr := gzip.NewReader(body)
		if gzErr != nil {
			return nil, f.readError(url, body, decompressError(gzErr))
		}
		defer gzReader.Close()

		reader = gzReader
		transportDecoded = true
	}

	hint := compressionFromName(req.URL.Path)
	if hint == compressionNone && !transportDecoded {
		hint = compressionFromContentType(resp.Header.Get("Content-Type"))
	}

	data, err := f.decode(reader, hint, transportDecoded)
	if err != nil {
		return nil, f.readError(url, body, err)
	}

	f.log.WithFields(logrus.Fields{
		"url":      url,
		"size":     len(data),
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("Fetched data")

	return data, nil
}

// ReadFile reads a local document with the same decompression rules as Fetch.
func ReadFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	body := &errTracker{r: file}
	f := &Fetcher{maxBodySize: maxBodySize}

	data, err := f.decode(body, compressionFromName(path), false)
	if err != nil {
		if body.err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, body.err)
		}

		return nil, &FetchError{URL: path, Kind: kindOf(err), Err: err}
	}

	return data, nil
}

// decode sniffs the payload and decompresses it when the magic bytes or the
// hint say so. The hint is ignored once the transport has decoded the body.
func (f *Fetcher) decode(r io.Reader, hint compression, transportDecoded bool) ([]byte, error) {
	br := bufio.NewReader(r)

	// A short peek just means a short body.
	magic, _ := br.Peek(len(xzMagic))

	kind := compressionFromMagic(magic)
	if kind == compressionNone && !transportDecoded {
		kind = hint
	}

	var reader io.Reader = br

	switch kind {
	case compressionGzip:
		gzReader, err := gzip.NewReader(br)
		if err != nil {
			return nil, decompressError(err)
		}
		defer gzReader.Close()

		reader = gzReader
	case compressionXZ:
		xzReader, err := xz.NewReader(br)
		if err != nil {
			return nil, decompressError(err)
		}

		reader = xzReader
	case compressionNone:
	}

	data, err := io.ReadAll(io.LimitReader(reader, f.maxBodySize+1))
	if err != nil {
		if kind != compressionNone || transportDecoded {
			return nil, decompressError(err)
		}

		return nil, err
	}

	if int64(len(data)) > f.maxBodySize {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, f.maxBodySize)
	}

	return data, nil
}

// readError classifies a failure while reading the body. Errors coming from
// the connection itself are network failures even when they surface through
// a decompressor.
func (f *Fetcher) readError(url string, body *errTracker, err error) error {
	if body.err != nil {
		return &FetchError{URL: url, Kind: ErrNetwork, Err: body.err}
	}

	return &FetchError{URL: url, Kind: kindOf(err), Err: err}
}

type decompressErr struct{ err error }

func (e decompressErr) Error() string { return e.err.Error() }
func (e decompressErr) Unwrap() error { return e.err }

func decompressError(err error) error {
	return decompressErr{err: err}
}

func kindOf(err error) error {
	var de decompressErr

	switch {
	case errors.As(err, &de):
		return ErrDecompress
	case errors.Is(err, ErrBodyTooLarge):
		return ErrBodyTooLarge
	case errors.Is(err, gzip.ErrHeader), errors.Is(err, gzip.ErrChecksum):
		return ErrDecompress
	default:
		return ErrNetwork
	}
}

func compressionFromMagic(magic []byte) compression {
	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		return compressionGzip
	case bytes.HasPrefix(magic, xzMagic):
		return compressionXZ
	default:
		return compressionNone
	}
}

func compressionFromName(name string) compression {
	name = strings.ToLower(name)

	switch {
	case strings.HasSuffix(name, ".gz"):
		return compressionGzip
	case strings.HasSuffix(name, ".xz"):
		return compressionXZ
	default:
		return compressionNone
	}
}

func compressionFromContentType(contentType string) compression {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return compressionNone
	}

	switch mediaType {
	case "application/gzip", "application/x-gzip":
		return compressionGzip
	case "application/x-xz":
		return compressionXZ
	default:
		return compressionNone
	}
}

// errTracker remembers the first error returned by the underlying reader.
type errTracker struct {
	r   io.Reader
	err error
}

func (t *errTracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && t.err == nil {
		t.err = err
	}

	return n, err
}
