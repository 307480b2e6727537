package workspace

import (
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 32

// graph is the reverse link index: target note name to the set of source
// document URIs linking to it. Outgoing edges live on the Document.
//
// The index is split into shards by target name. Replacing a document's
// edge set locks every shard it touches, in shard order, for the whole
// delta, so a reader never sees old and new edges of one document at once
// while writers touching disjoint shards proceed in parallel.
type graph struct {
	shards [shardCount]shard
}

type shard struct {
	mu sync.RWMutex
	in map[string]map[string]struct{}
}

func newGraph() *graph {
	g := &graph{}
	for i := range g.shards {
		g.shards[i].in = make(map[string]map[string]struct{})
	}
	return g
}

func shardOf(name string) int {
	return int(xxhash.Sum64String(name) % shardCount)
}

// replace swaps source's outgoing targets from old to next.
func (g *graph) replace(source string, old, next []string) (added, removed []string) {
	oldSet := toSet(old)
	nextSet := toSet(next)
	for t := range nextSet {
		if _, ok := oldSet[t]; !ok {
			added = append(added, t)
		}
	}
	for t := range oldSet {
		if _, ok := nextSet[t]; !ok {
			removed = append(removed, t)
		}
	}
	if len(added) == 0 && len(removed) == 0 {
		return nil, nil
	}
	slices.Sort(added)
	slices.Sort(removed)

	var idx []int
	for _, t := range added {
		idx = append(idx, shardOf(t))
	}
	for _, t := range removed {
		idx = append(idx, shardOf(t))
	}
	slices.Sort(idx)
	idx = slices.Compact(idx)

	for _, i := range idx {
		g.shards[i].mu.Lock()
	}
	for _, t := range removed {
		sh := &g.shards[shardOf(t)]
		if set := sh.in[t]; set != nil {
			delete(set, source)
			if len(set) == 0 {
				delete(sh.in, t)
			}
		}
	}
	for _, t := range added {
		sh := &g.shards[shardOf(t)]
		set := sh.in[t]
		if set == nil {
			set = make(map[string]struct{})
			sh.in[t] = set
		}
		set[source] = struct{}{}
	}
	for i := len(idx) - 1; i >= 0; i-- {
		g.shards[idx[i]].mu.Unlock()
	}
	return added, removed
}

// sources returns the URIs of documents linking to target.
func (g *graph) sources(target string) []string {
	sh := &g.shards[shardOf(target)]
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	set := sh.in[target]
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

func toSet(xs []string) map[string]struct{} {
	m := make(map[string]struct{}, len(xs))
	for _, x := range xs {
		if x != "" {
			m[x] = struct{}{}
		}
	}
	return m
}
