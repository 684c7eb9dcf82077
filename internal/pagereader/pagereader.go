// Package pagereader is the DOM access capability the harvester depends on.
// A Reader opens isolated sessions; each Page navigates to one URL at a time
// and exposes selector queries over the loaded document.
package pagereader

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a selector or attribute is absent.
var ErrNotFound = errors.New("not found")

type Reader interface {
	// Open starts a fresh session with its own cookies and DOM state.
	Open(ctx context.Context) (Page, error)
}

type Querier interface {
	QueryAll(selector string) ([]Element, error)
}

type Page interface {
	Querier
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	Close() error
}

type Element interface {
	Querier
	Attribute(name string) (string, error)
	InnerText() (string, error)
	InnerHTML() (string, error)
}

// First returns the first element matching selector, or ErrNotFound.
func First(q Querier, selector string) (Element, error) {
	els, err := q.QueryAll(selector)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, ErrNotFound
	}
	return els[0], nil
}

// Text returns the trimmed inner text of the first match.
func Text(q Querier, selector string) (string, error) {
	el, err := First(q, selector)
	if err != nil {
		return "", err
	}
	text, err := el.InnerText()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Attr returns the trimmed attribute value of the first match.
func Attr(q Querier, selector, name string) (string, error) {
	el, err := First(q, selector)
	if err != nil {
		return "", err
	}
	v, err := el.Attribute(name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(v), nil
}
