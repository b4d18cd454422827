// Package summarize invokes the language model that turns a transcript into a
// structured meeting summary. The model is a black box returning raw text;
// shape validation happens downstream in the schema package.
package summarize

import (
	"context"
	"errors"
)

// ErrThrottled marks a rate-limited model invocation; callers retry with
// backoff up to the stage policy limit.
var ErrThrottled = errors.New("summarizer throttled")

type Client interface {
	// Summarize returns the model's raw output for the given transcript text.
	Summarize(ctx context.Context, transcriptText string) ([]byte, error)
	// ModelVersion identifies the model for artifact stamping.
	ModelVersion() string
}
