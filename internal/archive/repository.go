// Package archive keeps what the console has observed beyond the live
// history window: every appended history point and every violation fetched.
package archive

import (
	"context"
	"time"

	"github.com/smarttraffic/console/internal/traffic"
)

// DefaultListLimit is used when ListOptions.Limit is not set.
const DefaultListLimit = 100

// ListOptions contains options for listing archived records.
type ListOptions struct {
	// Since excludes records observed before it when non-zero.
	Since time.Time
	Limit int
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 {
		return DefaultListLimit
	}
	return o.Limit
}

// Repository defines archive persistence. It satisfies traffic.Recorder.
type Repository interface {
	traffic.Recorder

	// ListHistory returns archived history points, newest first.
	ListHistory(ctx context.Context, opts ListOptions) ([]traffic.HistoryPoint, error)

	// ListViolations returns archived violations, newest first.
	ListViolations(ctx context.Context, opts ListOptions) ([]traffic.Violation, error)
}
