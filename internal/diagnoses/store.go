package diagnoses

import "context"

// HistoryStore persists the diagnosis history as a whole ordered collection.
// Save replaces the durable copy after every mutation; Load is called once at
// startup. Implementations absorb missing or corrupt durable state by
// returning an empty history rather than failing the caller.
type HistoryStore interface {
	Load(ctx context.Context) (History, error)
	Save(ctx context.Context, h History) error
}
