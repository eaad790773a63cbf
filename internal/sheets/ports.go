package sheets

import (
	"context"

	"github.com/Phyllis9783/spendy-map-joy/internal/core"
)

// Ports for outbound adapters.
type (
	// EntryWriter appends a ledger entry to the backup target.
	EntryWriter interface {
		Append(ctx context.Context, e core.LedgerEntry) (rowRef string, err error)
	}
)
