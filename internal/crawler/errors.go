package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	// ErrInvalidJob wraps every job validation failure.
	ErrInvalidJob = errors.New("invalid crawl job")
	// ErrNonHTMLContent signals a fetched resource that is not HTML. It is a skip, not a crawl error.
	ErrNonHTMLContent = errors.New("non-HTML content")
	// ErrJobRunning is returned when a job ID is already being crawled.
	ErrJobRunning = errors.New("crawl job already running")
	// ErrUnknownJob is returned for administrative calls on jobs that are not active.
	ErrUnknownJob = errors.New("unknown crawl job")
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned by stores when a job ID is reused.
	ErrAlreadyExists = errors.New("already exists")
)

// ErrorKind classifies a page failure.
type ErrorKind string

// Error kinds recorded on CrawlError.
const (
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindHTTPStatus ErrorKind = "http_status"
	ErrorKindNetwork    ErrorKind = "network"
	ErrorKindRender     ErrorKind = "render"
	ErrorKindInternal   ErrorKind = "internal"
)

// FetchError is returned by fetchers for classified page failures.
type FetchError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int
	Err        error
}

// NewStatusError builds the error for a non-2xx response.
func NewStatusError(rawURL string, status int) *FetchError {
	return &FetchError{Kind: ErrorKindHTTPStatus, URL: rawURL, StatusCode: status}
}

func (e *FetchError) Error() string {
	if e.Kind == ErrorKindHTTPStatus {
		text := http.StatusText(e.StatusCode)
		if text == "" {
			return fmt.Sprintf("HTTP %d", e.StatusCode)
		}
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, text)
	}
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ClassifyError maps an arbitrary fetch error to an ErrorKind and status code.
func ClassifyError(err error) (ErrorKind, int) {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind, fetchErr.StatusCode
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout, 0
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorKindTimeout, 0
	}
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return ErrorKindTimeout, 0
	}
	return ErrorKindNetwork, 0
}
