// Package convert runs the webarchive-to-text pipeline under size and
// wall-clock guards. The pipeline is pure: bytes in, text or a typed error
// out, with no shared state between invocations.
package convert

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/webarctools/webarc/internal/bplist"
	"github.com/webarctools/webarc/internal/htmltext"
	"github.com/webarctools/webarc/internal/webarchive"
)

// Kind classifies pipeline failures. All kinds are terminal for a request:
// the input fully determines the outcome, so nothing is retried.
type Kind string

const (
	// KindFormat covers inputs that are not valid binary plists, lack the
	// webarchive structure, or carry undecodable text.
	KindFormat Kind = "format"
	// KindSizeLimit marks inputs over the configured byte cap.
	KindSizeLimit Kind = "size_limit"
	// KindTimeout marks conversions that exceeded the wall-clock budget.
	KindTimeout Kind = "timeout"
)

// Error is the single failure type produced by the pipeline.
type Error struct {
	Kind   Kind
	Stage  string // plist, webarchive, render, limits
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("convert: %s error in %s stage: %s", e.Kind, e.Stage, e.Detail)
}

// Defaults for the pipeline guards; overridable via Options.
const (
	DefaultMaxBytes = 50 << 20
	DefaultTimeout  = 30 * time.Second
)

// Options configures a Converter. Zero values select the defaults.
type Options struct {
	// MaxBytes caps the input size. Inputs over the cap are rejected
	// before any parsing happens.
	MaxBytes int64
	// Timeout bounds the whole pipeline wall-clock.
	Timeout time.Duration
}

// Converter runs conversions with a fixed set of limits. It is stateless
// and safe for concurrent use.
type Converter struct {
	maxBytes int64
	timeout  time.Duration
}

// New returns a Converter with the given options.
func New(opts Options) *Converter {
	c := &Converter{maxBytes: opts.MaxBytes, timeout: opts.Timeout}
	if c.maxBytes <= 0 {
		c.maxBytes = DefaultMaxBytes
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	return c
}

// MaxBytes reports the configured input cap.
func (c *Converter) MaxBytes() int64 { return c.maxBytes }

// Convert turns raw webarchive bytes into plain text. The size cap is
// checked before any parsing. The stages run on a worker goroutine
// supervised through the context so a pathological input is abandoned at
// the deadline with no partial result.
func (c *Converter) Convert(ctx context.Context, raw []byte) (string, error) {
	if int64(len(raw)) > c.maxBytes {
		return "", &Error{
			Kind:   KindSizeLimit,
			Stage:  "limits",
			Detail: fmt.Sprintf("input is %d bytes, cap is %d", len(raw), c.maxBytes),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := run(raw)
		done <- result{text, err}
	}()

	select {
	case <-ctx.Done():
		log.Warn().Int("bytes", len(raw)).Msg("conversion abandoned at deadline")
		return "", &Error{Kind: KindTimeout, Stage: "limits", Detail: "wall-clock budget exceeded"}
	case res := <-done:
		return res.text, res.err
	}
}

// decodePlist is a seam for tests that assert the decoder is never reached
// when an earlier guard rejects the input.
var decodePlist = bplist.Decode

// run executes the three stages in order. Every stage failure is a format
// error; the stage name is recorded for diagnostics.
func run(raw []byte) (string, error) {
	root, err := decodePlist(raw)
	if err != nil {
		return "", &Error{Kind: KindFormat, Stage: "plist", Detail: err.Error()}
	}

	res, err := webarchive.Extract(root)
	if err != nil {
		return "", &Error{Kind: KindFormat, Stage: "webarchive", Detail: err.Error()}
	}

	if !isHTMLType(res.MIMEType) {
		// A webarchive wrapping something other than HTML is accepted only
		// when the payload is plainly UTF-8 text, which passes through
		// without the HTML stage.
		if utf8.Valid(res.Data) && isTextType(res.MIMEType) {
			return string(res.Data), nil
		}
		return "", &Error{
			Kind:   KindFormat,
			Stage:  "webarchive",
			Detail: fmt.Sprintf("main resource type %q is not convertible", res.MIMEType),
		}
	}

	text, err := htmltext.Render(res.Data, res.TextEncoding)
	if err != nil {
		return "", &Error{Kind: KindFormat, Stage: "render", Detail: err.Error()}
	}
	return text, nil
}

func isHTMLType(mime string) bool {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "text/html", "application/xhtml+xml":
		return true
	}
	return false
}

func isTextType(mime string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mime)), "text/")
}
