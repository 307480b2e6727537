package syntax

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// assignIDs derives every node's stable id from its parent's id, the list
// it sits in, its kind and source text, and how many identical siblings
// precede it. Row numbers are not part of the id, so inserting or editing
// unrelated lines leaves an id untouched.
func assignIDs(root *Node) {
	root.StableID = stableID("", 'r', root.Kind.String(), 0)
	assignList(root.Contents, root.StableID, 'c')
	assignList(root.Children, root.StableID, 'b')
}

func assignList(nodes []*Node, parent string, list byte) {
	if len(nodes) == 0 {
		return
	}
	seen := make(map[string]int, len(nodes))
	for _, n := range nodes {
		key := n.Kind.String() + "\x00" + n.Text()
		k := seen[key]
		seen[key] = k + 1
		n.StableID = stableID(parent, list, key, k)
		assignList(n.Contents, n.StableID, 'c')
		assignList(n.Children, n.StableID, 'b')
	}
}

func stableID(parent string, list byte, key string, occurrence int) string {
	d := xxhash.New()
	_, _ = d.WriteString(parent)
	_, _ = d.Write([]byte{0, list})
	_, _ = d.WriteString(key)
	var buf [binary.MaxVarintLen64]byte
	_, _ = d.Write(buf[:binary.PutUvarint(buf[:], uint64(occurrence))])
	return fmt.Sprintf("%016x", d.Sum64())
}

// FindByID returns the node with the given stable id, or nil.
func (t *Tree) FindByID(id string) *Node {
	var found *Node
	t.Root.Walk(func(n *Node) bool {
		if found != nil {
			return false
		}
		if n.StableID == id {
			found = n
			return false
		}
		return true
	})
	return found
}
