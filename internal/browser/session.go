// Package browser defines the navigation capability the crawl depends on and
// the Driver that owns a session and its recovery policy.
package browser

import (
	"context"
	"errors"
	"fmt"
)

// ErrNavigationFailed is returned by Driver.Goto after the second
// consecutive failure for the same URL.
var ErrNavigationFailed = errors.New("navigation failed")

// ErrorKind tells the Driver how to recover from a navigation error.
type ErrorKind int

// Navigation failure kinds.
const (
	// KindTransient covers timeouts and network or render hiccups. The same
	// session is reused after a delay.
	KindTransient ErrorKind = iota
	// KindSessionTerminated means the browsing session is gone and must be
	// rebuilt before retrying.
	KindSessionTerminated
)

func (k ErrorKind) String() string {
	switch k {
	case KindSessionTerminated:
		return "session_terminated"
	default:
		return "transient"
	}
}

// NavigationError is returned by Session.Navigate.
type NavigationError struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate %s (%s): %v", e.URL, e.Kind, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind of err. Errors that are not a
// NavigationError are transient.
func KindOf(err error) ErrorKind {
	var navErr *NavigationError
	if errors.As(err, &navErr) {
		return navErr.Kind
	}
	return KindTransient
}

// Control describes an in-page element to activate, such as the next-page
// link or a consent button. Selectors are tried first, then elements whose
// visible text equals or aria-label contains one of Labels.
type Control struct {
	Name      string
	Selectors []string
	Labels    []string
}

// Session is one browsing context.
type Session interface {
	// Navigate loads url. Failures are *NavigationError values.
	Navigate(ctx context.Context, url string) error
	// Title returns the current document title.
	Title(ctx context.Context) (string, error)
	// Text returns the rendered text of the first element matching selector.
	Text(ctx context.Context, selector string) (string, error)
	// HTML returns the serialized DOM of the current page.
	HTML(ctx context.Context) (string, error)
	// Click activates the first visible element matching control.
	Click(ctx context.Context, control Control) (bool, error)
	// Alive reports whether the session can still be used.
	Alive() bool
	Close() error
}

// Factory builds a fresh Session with a fixed configuration.
type Factory func(ctx context.Context) (Session, error)
