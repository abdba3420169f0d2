package store

import (
	"context"

	"github.com/marketloop/marketloop/internal/models"
)

// ResetStore holds at most one ResetRecord per identity. Implementations do
// not need to serialize same-identity calls themselves; the reset service
// holds a per-identity lock around every store access.
type ResetStore interface {
	// Set stores rec under rec.Identity, replacing any existing record.
	Set(ctx context.Context, rec models.ResetRecord) error

	// Get returns the record for identity, or (nil, nil) if none exists.
	// Expiry is not interpreted here; the caller decides what a stale
	// record means.
	Get(ctx context.Context, identity string) (*models.ResetRecord, error)

	// Delete removes the record for identity. Deleting a missing record
	// is not an error.
	Delete(ctx context.Context, identity string) error
}
