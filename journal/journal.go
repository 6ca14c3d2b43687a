// Package journal records terminal payment outcomes to a durable audit
// store, separate from the bookkeeping sets the dispatch pipeline maintains.
// Journal writes are best-effort: the reconciler logs failures but never
// lets them block or fail a batch.
package journal

import (
	"context"
	"fmt"
	"strings"

	"github.com/paystream/relay/task"
)

// Journal persists terminal outcomes for audit and offline reconciliation.
type Journal interface {
	Record(ctx context.Context, outcomes []task.Outcome) error
	Close(ctx context.Context) error
}

// Create builds a Journal from a connection string. An empty string
// disables journaling.
func Create(connString string) (Journal, error) {
	switch {
	case connString == "":
		return Noop{}, nil
	case strings.HasPrefix(connString, "mongodb://"), strings.HasPrefix(connString, "mongodb+srv://"):
		return NewMongoJournal(connString)
	default:
		return nil, fmt.Errorf("unsupported journal URL: %s", connString)
	}
}

// Noop discards every record.
type Noop struct{}

func (Noop) Record(ctx context.Context, outcomes []task.Outcome) error { return nil }
func (Noop) Close(ctx context.Context) error                           { return nil }
