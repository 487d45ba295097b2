package store

import "context"

// Opener hands out a fresh, migrated handle for a single operation. Callers
// close the handle when the operation ends.
type Opener interface {
	Open(ctx context.Context) (*Store, error)
}

// Provider opens the store at a fixed path.
type Provider struct {
	Path string
}

// Open implements Opener.
func (p Provider) Open(ctx context.Context) (*Store, error) {
	return Open(ctx, p.Path)
}

// Lock returns the advisory lock guarding the provider's store.
func (p Provider) Lock() *Lock {
	return NewLock(p.Path)
}
