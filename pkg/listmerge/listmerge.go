// Package listmerge resolves additive list fields. Extractors propose list
// actions, but a full replace would let one bad transcription wipe a curated
// list, so replace is demoted to add and only explicit removals remove.
package listmerge

import "strings"

// Action is the list operation proposed by the extractor.
type Action string

const (
	ActionAdd     Action = "add"
	ActionRemove  Action = "remove"
	ActionReplace Action = "replace"
)

// Result is the outcome of resolving a proposed list against the current one.
type Result struct {
	// Merged is the list that should become the field's new value.
	Merged []string
	// Removed is the subset of proposed entries that were actually present
	// and removed; callers cascade cleanup from it.
	Removed []string
	// Downgraded is set when a replace was demoted to add.
	Downgraded bool
}

// Resolve merges a proposed list into the current list under the given
// action. Entries compare trimmed and case-insensitively; the current list's
// order and spelling win for retained entries.
func Resolve(current []string, proposed []string, action Action) Result {
	switch action {
	case ActionRemove:
		return remove(current, proposed)
	case ActionReplace:
		res := add(current, proposed)
		res.Downgraded = true
		return res
	default:
		// add is also the fallback for unknown actions
		return add(current, proposed)
	}
}

func add(current []string, proposed []string) Result {
	merged := make([]string, 0, len(current)+len(proposed))
	seen := make(map[string]bool, len(current)+len(proposed))

	for _, entry := range current {
		key := normalize(entry)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, entry)
	}
	for _, entry := range proposed {
		key := normalize(entry)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, entry)
	}

	return Result{Merged: merged}
}

func remove(current []string, proposed []string) Result {
	drop := make(map[string]bool, len(proposed))
	for _, entry := range proposed {
		if key := normalize(entry); key != "" {
			drop[key] = true
		}
	}

	merged := make([]string, 0, len(current))
	removed := make([]string, 0, len(proposed))
	for _, entry := range current {
		if drop[normalize(entry)] {
			removed = append(removed, entry)
			continue
		}
		merged = append(merged, entry)
	}

	return Result{Merged: merged, Removed: removed}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
