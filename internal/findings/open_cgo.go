//go:build cgo

package findings

import "context"

// Open returns a persistent KuzuStore at path with its schema initialised.
func Open(ctx context.Context, path string) (Store, error) {
	s, err := NewKuzuFileStore(path)
	if err != nil {
		return nil, err
	}
	if err := s.InitSchema(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Persistent reports whether Open returns a store that survives the process.
const Persistent = true
