// Package changetree builds and normalizes the in-memory trees the merge
// planner consumes: one for the local filesystem, one for the remote
// backend, each produced by comparing the current state to the
// sync-state database (spec.md §3, §4.2, §4.3).
package changetree

import (
	"fmt"
	"io"
	"sort"

	"github.com/foldersync/foldersync/internal/model"
)

// Change is what happened to a path since the sync-state database last
// recorded it.
type Change int

// Change values (spec.md §3).
const (
	ChangeUnknown Change = iota
	ChangeCreated
	ChangeChanged
	ChangeDeleted
)

func (c Change) String() string {
	switch c {
	case ChangeCreated:
		return "created"
	case ChangeChanged:
		return "changed"
	case ChangeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Node is one path's entry in a ChangeTree. Mtime/SyncAttr meaning
// depends on Change: for created/changed, the new value; for deleted,
// the previously stored value.
type Node struct {
	Kind     model.Kind
	Change   Change
	Mtime    int64
	SyncAttr string
	Children map[string]*Node
}

// NewDir returns an empty directory node.
func NewDir() *Node {
	return &Node{Kind: model.KindDirectory, Children: map[string]*Node{}}
}

// Child fetches or creates the named child of a directory node.
func (n *Node) Child(name string) *Node {
	if n.Children == nil {
		n.Children = map[string]*Node{}
	}

	c, ok := n.Children[name]
	if !ok {
		c = &Node{}
		n.Children[name] = c
	}

	return c
}

// HasLiveDescendant reports whether any descendant (direct or indirect)
// of n has Change in {Created, Changed} — used by the planner's
// deleted-vs-subtree-creates tie-break and by Normalize.
func (n *Node) HasLiveDescendant() bool {
	for _, c := range n.Children {
		if c.Change == ChangeCreated || c.Change == ChangeChanged {
			return true
		}

		if c.HasLiveDescendant() {
			return true
		}
	}

	return false
}

// HasLiveCreatedDescendant reports whether any descendant (direct or
// indirect) of n has Change == Created exactly — narrower than
// HasLiveDescendant, for the planner's delete-vs-rescue tie-break, which
// only re-materializes a container for genuinely new descendants, not
// ones that were merely edited (spec.md §4.4).
func (n *Node) HasLiveCreatedDescendant() bool {
	for _, c := range n.Children {
		if c.Change == ChangeCreated {
			return true
		}

		if c.HasLiveCreatedDescendant() {
			return true
		}
	}

	return false
}

// Normalize enforces the invariant that no node with a live descendant
// (Change in {Created, Changed}) may itself carry Change in {Deleted,
// Unknown}: such nodes are promoted to Changed. A subtree with live
// descendants cannot itself be absent (spec.md §3, §8 invariant 2).
func Normalize(n *Node) {
	for _, c := range n.Children {
		Normalize(c)
	}

	if (n.Change == ChangeDeleted || n.Change == ChangeUnknown) && n.HasLiveDescendant() {
		n.Change = ChangeChanged
	}
}

// sortedNames returns a node's child names in a stable order, for
// deterministic traversal and the debug dump below.
func sortedNames(n *Node) []string {
	names := make([]string, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Dump pretty-prints the tree to w, gated by callers on debug log level
// (spec.md §9 "ChangeTree dump").
func Dump(w io.Writer, root *Node) {
	dump(w, root, "/", 0)
}

func dump(w io.Writer, n *Node, path string, depth int) {
	indent := ""
	for range depth {
		indent += "  "
	}

	fmt.Fprintf(w, "%s%s [%s] change=%s mtime=%d attr=%q\n", indent, path, n.Kind, n.Change, n.Mtime, n.SyncAttr)

	for _, name := range sortedNames(n) {
		dump(w, n.Children[name], model.Join(path, name), depth+1)
	}
}
