// Package selection holds the set of record identifiers the user selected.
//
// A selection is an ordered list of unique identifiers. Stores are safe for
// concurrent use.
package selection

import "context"

// Store persists one selection.
type Store interface {
	// Get returns the selected identifiers in selection order.
	Get(ctx context.Context) ([]int, error)

	// Set replaces the whole selection. Duplicates are dropped, keeping the
	// first occurrence.
	Set(ctx context.Context, ids []int) error

	// Toggle removes id if it is selected and appends it otherwise.
	Toggle(ctx context.Context, id int) error

	// Contains reports whether id is selected.
	Contains(ctx context.Context, id int) (bool, error)
}

// Observable is implemented by stores that push selection changes to
// subscribers.
type Observable interface {
	Subscribe(fn func(ids []int)) (unsubscribe func())
}

// dedupe returns ids without duplicates, keeping first occurrences.
// The result is never nil.
func dedupe(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
