package salyk

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Sentinel errors for errors.Is checks against a *FetchError.
var (
	ErrNetwork    = errors.New("network error")
	ErrBadStatus  = errors.New("unexpected http status")
	ErrDecode     = errors.New("response body could not be decoded")
	ErrExtraction = errors.New("no receipt fields found in document")
)

// ErrBodyTooLarge is wrapped by a *FetchError when the page exceeds
// Config.MaxBodyBytes.
var ErrBodyTooLarge = errors.New("response body too large")

// maxSnippet bounds diagnostic text carried in errors.
const maxSnippet = 512

// ErrorKind classifies fetch failures.
type ErrorKind int

const (
	KindNetwork ErrorKind = iota + 1
	KindDecode
	KindExtraction
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindDecode:
		return "decode"
	case KindExtraction:
		return "extraction"
	default:
		return "unknown"
	}
}

// FetchError is returned by Client and Parser. None of these failures are
// retried here.
type FetchError struct {
	Kind       ErrorKind
	StatusCode int // set for non-2xx responses
	Snippet    string
	Err        error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Snippet != "" {
		fmt.Fprintf(&b, " (snippet: %q)", e.Snippet)
	}
	return b.String()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets callers test the kind with the package sentinels.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrBadStatus:
		return e.StatusCode != 0
	case ErrDecode:
		return e.Kind == KindDecode
	case ErrExtraction:
		return e.Kind == KindExtraction
	}
	return false
}

// snippet truncates s to maxSnippet bytes on a rune boundary.
func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxSnippet {
		return s
	}
	cut := maxSnippet
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
