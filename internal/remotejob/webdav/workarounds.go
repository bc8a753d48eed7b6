// Package webdav implements remotejob.JobFactory against a WebDAV server:
// ETags as sync-attributes, Depth-1 PROPFIND listings, and the
// folder-sync-attribute change-detection mode (spec.md §3, §6).
package webdav

// Workarounds adjusts protocol handling for servers that deviate from
// strict WebDAV semantics, grounded on SynqClient's WebDAVWorkaround flags
// (libsynqclient.h). Unlike the C++ original's QFlags bitset, these are
// plain named booleans, matching this codebase's general preference for
// explicit struct fields over bitsets.
type Workarounds struct {
	// NoRecursiveFolderETags is set for servers that only update a
	// folder's ETag when a direct child changes, not when a change occurs
	// deeper in the subtree. The folder-sync-attribute ChangeTree builder
	// must always recurse into such a server's folders rather than
	// trusting an unchanged ETag to mean an unchanged subtree.
	NoRecursiveFolderETags bool

	// InconsistentETagsUsingPROPFINDAndGET is set for servers that report
	// a different ETag for the same file depending on whether it was
	// retrieved via GET or PROPFIND. When set, a downloaded file's
	// GET-observed ETag cannot be used as the expected sync-attr for a
	// later conditional PROPFIND-based comparison.
	InconsistentETagsUsingPROPFINDAndGET bool

	// DerivePROPFINDETagsFromGETETagsForApache is set for Apache mod_dav
	// servers whose GET ETag embeds the PROPFIND ETag as a trailing
	// "inode-size-mtime" pattern; DownloadFile derives the PROPFIND-form
	// ETag from the GET-form one so the two stay comparable.
	DerivePROPFINDETagsFromGETETagsForApache bool
}
