// Package vision turns a meter photo into the raw text a vision model reads
// from it. Everything it returns is untrusted until ParseReading accepts it.
package vision

import (
	"context"
	"errors"
)

var (
	ErrEmptyImage    = errors.New("vision: empty image")
	ErrEmptyResponse = errors.New("vision: empty response")
	ErrBlocked       = errors.New("vision: response blocked")
)

type Request struct {
	Image     []byte
	MimeType  string
	MeterKind string
}

type Result struct {
	Text  string
	Model string
}

// Extractor is implemented by every vision backend. Implementations must be
// safe for concurrent use.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, req Request) (Result, error)
}

// StaticExtractor answers every request with the same text. It backs local
// runs without an API key and tests.
type StaticExtractor struct {
	Text string
	Err  error
}

func (s *StaticExtractor) Name() string { return "static" }

func (s *StaticExtractor) Extract(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if len(req.Image) == 0 {
		return Result{}, ErrEmptyImage
	}
	if s.Err != nil {
		return Result{}, s.Err
	}
	return Result{Text: s.Text, Model: "static"}, nil
}
