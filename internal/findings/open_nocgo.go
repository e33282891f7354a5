//go:build !cgo

package findings

import "context"

// Open returns a MemStore; KuzuDB needs cgo. path is ignored.
func Open(_ context.Context, _ string) (Store, error) {
	return NewMemStore(), nil
}

// Persistent reports whether Open returns a store that survives the process.
const Persistent = false
