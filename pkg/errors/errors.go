package errors

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"syscall"

	"google.golang.org/api/googleapi"
)

// Kind classifies a harvest failure.
type Kind string

const (
	// KindTransient is a network, TLS or navigation timeout failure. Retryable.
	KindTransient Kind = "transient"
	// KindContentMissing is a selector or field that is not on the page.
	KindContentMissing Kind = "content_missing"
	// KindParse is a relative time phrase that could not be recognized.
	KindParse Kind = "parse"
	// KindAuthentication is a credential or permission failure. Fatal for the run.
	KindAuthentication Kind = "authentication"
	// KindUpload is an upload that failed after its retries were exhausted.
	KindUpload Kind = "upload"
)

// HarvestError carries the kind of failure together with the operation and URL
// that produced it, so log lines are enough to reproduce the problem.
type HarvestError struct {
	Kind Kind
	Op   string
	URL  string
	Err  error
}

func (e *HarvestError) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(e.Kind))
	b.WriteString("] ")
	b.WriteString(e.Op)
	if e.URL != "" {
		b.WriteString(" ")
		b.WriteString(e.URL)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *HarvestError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the failure may succeed on a later attempt.
func (e *HarvestError) IsRetryable() bool {
	return e.Kind == KindTransient
}

func New(kind Kind, op, url string, err error) *HarvestError {
	return &HarvestError{Kind: kind, Op: op, URL: url, Err: err}
}

func NewTransient(op, url string, err error) *HarvestError {
	return New(KindTransient, op, url, err)
}

func NewContentMissing(op, url string, err error) *HarvestError {
	return New(KindContentMissing, op, url, err)
}

func NewParse(op string, err error) *HarvestError {
	return New(KindParse, op, "", err)
}

func NewAuthentication(op string, err error) *HarvestError {
	return New(KindAuthentication, op, "", err)
}

func NewUpload(op, path string, err error) *HarvestError {
	return New(KindUpload, op, path, err)
}

// KindOf returns the kind of the first HarvestError in err's chain, or "" if none.
func KindOf(err error) Kind {
	var he *HarvestError
	if stderrors.As(err, &he) {
		return he.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsTransient reports whether err is a network/TLS-class failure worth retrying.
// Authentication and not-found responses are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) {
		return false
	}

	var he *HarvestError
	if stderrors.As(err, &he) {
		switch he.Kind {
		case KindTransient:
			return true
		case KindAuthentication, KindContentMissing, KindParse:
			return false
		}
	}

	var gErr *googleapi.Error
	if stderrors.As(err, &gErr) {
		switch {
		case gErr.Code == http.StatusTooManyRequests, isRateLimited(gErr):
			return true
		case gErr.Code >= 500:
			return true
		default:
			return false
		}
	}

	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if stderrors.Is(err, syscall.ECONNRESET) || stderrors.Is(err, syscall.ECONNREFUSED) ||
		stderrors.Is(err, syscall.ECONNABORTED) || stderrors.Is(err, syscall.EPIPE) {
		return true
	}

	// *url.Error is a net.Error, so certificate failures must be ruled out first.
	var authorityErr x509.UnknownAuthorityError
	var verifyErr *tls.CertificateVerificationError
	if stderrors.As(err, &authorityErr) || stderrors.As(err, &verifyErr) {
		return false
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return true
	}
	var recordErr tls.RecordHeaderError
	if stderrors.As(err, &recordErr) {
		return true
	}
	var alertErr tls.AlertError
	if stderrors.As(err, &alertErr) {
		return true
	}

	// playwright reports navigation problems as plain errors.
	return playwrightNetError.MatchString(err.Error())
}

// playwrightNetError matches chromium network errors ("net::ERR_CONNECTION_CLOSED")
// and playwright timeouts ("Timeout 30000ms exceeded").
var playwrightNetError = regexp.MustCompile(`net::ERR_[A-Z_]+|(?i:timeout \d+ms exceeded)`)

// Drive answers quota exhaustion with 403 and one of these reasons.
var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
}

func isRateLimited(gErr *googleapi.Error) bool {
	if gErr.Code != http.StatusForbidden {
		return false
	}
	for _, item := range gErr.Errors {
		if rateLimitReasons[item.Reason] {
			return true
		}
	}
	return false
}

// IsAuthentication reports whether err is a credential/permission failure,
// either typed as such or a Drive 401/403 response. A 403 that only reports
// a rate limit is transient, not an authentication failure.
func IsAuthentication(err error) bool {
	if Is(err, KindAuthentication) {
		return true
	}
	var gErr *googleapi.Error
	if stderrors.As(err, &gErr) {
		if isRateLimited(gErr) {
			return false
		}
		return gErr.Code == http.StatusUnauthorized || gErr.Code == http.StatusForbidden
	}
	return false
}
