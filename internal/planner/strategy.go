package planner

// ConflictStrategy decides which side wins when both a local and a
// remote change land on the same path (spec.md §4.4).
type ConflictStrategy interface {
	// Name identifies the strategy in log lines.
	Name() string

	// PreferLocal reports whether the local side wins created×created,
	// changed×changed, and deleted-vs-changed tie-breaks. The remote
	// side wins when this is false.
	PreferLocal() bool
}

type localWins struct{}

// LocalWins is the ConflictStrategy under which the local side's
// changes win every genuine conflict.
func LocalWins() ConflictStrategy { return localWins{} }

func (localWins) Name() string      { return "local-wins" }
func (localWins) PreferLocal() bool { return true }

type remoteWins struct{}

// RemoteWins is the ConflictStrategy under which the remote side's
// changes win every genuine conflict.
func RemoteWins() ConflictStrategy { return remoteWins{} }

func (remoteWins) Name() string      { return "remote-wins" }
func (remoteWins) PreferLocal() bool { return false }
