package data

import (
	"errors"
	"fmt"
)

// Fetch failure kinds. A *FetchError unwraps to exactly one of them.
var (
	ErrHTTPStatus   = errors.New("unexpected HTTP status")
	ErrNetwork      = errors.New("network failure")
	ErrDecompress   = errors.New("decompression failed")
	ErrBodyTooLarge = errors.New("response body too large")
)

// Load failure kinds. A *LoadError unwraps to one of them.
var (
	ErrFetchFailed = errors.New("playlist fetch failed")
	ErrNoChannels  = errors.New("playlist has no channels")
)

// FetchError describes a failed Fetch. StatusCode is set for ErrHTTPStatus.
type FetchError struct {
	URL        string
	Kind       error
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: %v: %d", e.URL, e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v: %v", e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Kind)
	}
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}

// LoadError is a fatal playlist load failure.
type LoadError struct {
	Playlist string
	Kind     error
	Err      error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("load playlist %q: %v", e.Playlist, e.Kind)
	}

	return fmt.Sprintf("load playlist %q: %v: %v", e.Playlist, e.Kind, e.Err)
}

func (e *LoadError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}
