package workspace

import (
	"slices"

	"github.com/sahilm/fuzzy"
)

const maxCompletions = 50

// NoteCompletions fuzzy-matches prefix against known note names, best
// match first. An empty prefix lists every name alphabetically.
func (r *Repository) NoteCompletions(prefix string) []string {
	var names []string
	r.names.Range(func(k, _ any) bool {
		names = append(names, k.(string))
		return true
	})
	slices.Sort(names)
	return rank(prefix, names)
}

// AnchorCompletions fuzzy-matches prefix against the anchors of uri.
func (r *Repository) AnchorCompletions(uri, prefix string) []string {
	doc, ok := r.Get(uri)
	if !ok {
		return nil
	}
	names := doc.AnchorNames()
	slices.Sort(names)
	return rank(prefix, slices.Compact(names))
}

func rank(pattern string, candidates []string) []string {
	if pattern == "" {
		if len(candidates) > maxCompletions {
			candidates = candidates[:maxCompletions]
		}
		return candidates
	}
	matches := fuzzy.Find(pattern, candidates)
	out := make([]string, 0, min(len(matches), maxCompletions))
	for _, m := range matches {
		if len(out) == maxCompletions {
			break
		}
		out = append(out, m.Str)
	}
	return out
}
