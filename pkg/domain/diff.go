package domain

import (
	"reflect"
)

// Delta is a set of changes to a state map.
// A key present with a nil value is a deletion.
type Delta map[string]any

// Diff calculates the delta that turns oldState into newState.
// It returns nil when nothing changed, so callers can cheaply skip empty updates.
func Diff(oldState, newState map[string]any) Delta {
	delta := make(Delta)

	// Added or modified
	for k, newVal := range newState {
		oldVal, exists := oldState[k]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta[k] = newVal
		}
	}

	// Deleted
	for k := range oldState {
		if _, exists := newState[k]; !exists {
			delta[k] = nil
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}

// Apply merges delta into dst, returning dst (allocated if nil).
func Apply(dst map[string]any, delta Delta) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(delta))
	}
	for k, v := range delta {
		if v == nil {
			delete(dst, k)
			continue
		}
		dst[k] = cloneValue(v)
	}
	return dst
}

// IsEmpty reports whether the delta carries no change.
func (d Delta) IsEmpty() bool {
	return len(d) == 0
}
