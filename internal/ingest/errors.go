package ingest

import (
	"context"
	"errors"

	"github.com/joshsymonds/mailsort/internal/classify"
)

const (
	KindCanceled  = "canceled"
	KindContract  = "contract"
	KindTransient = "transient"
	KindBackend   = "backend"
)

// Kind names the class of a per-message error for logs and metrics.
func Kind(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, classify.ErrContract):
		return KindContract
	case errors.Is(err, classify.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	default:
		return KindBackend
	}
}
