package model

// Kind identifies what a path names.
type Kind int

// Kinds a FileInfo or ChangeTreeNode can carry.
const (
	KindInvalid Kind = iota
	KindFile
	KindDirectory
	KindDeleted
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindDeleted:
		return "deleted"
	default:
		return "invalid"
	}
}

// FileInfo is the remote metadata the backend reports for one entry.
// SyncAttr is opaque to every layer above the backend: it must change
// whenever the entry's content (file) or subtree (directory) changes, and
// is empty when the backend could not supply one (spec.md §9 "Open
// question — empty sync-attributes").
type FileInfo struct {
	Kind     Kind
	Name     string
	SyncAttr string
	URL      string
	Props    map[string]string
}

// SyncStateEntry is one persisted row: the last-observed local mtime and
// remote sync-attribute for a canonical path.
//
// Any entry in the database represents a path that was known-good at the
// end of some prior sync run, or is the special root-marker entry "/"
// indicating first-sync bootstrap has completed.
type SyncStateEntry struct {
	Path     string
	Mtime    int64 // local mtime at last sync, Unix nanoseconds
	SyncAttr string
	Valid    bool
}

// RootMarkerPath is the special database key signaling that the
// create-remote-root-on-first-sync bootstrap step has already run.
const RootMarkerPath = "/"
