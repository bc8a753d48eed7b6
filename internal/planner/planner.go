package planner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/foldersync/foldersync/internal/changetree"
	"github.com/foldersync/foldersync/internal/model"
	"github.com/foldersync/foldersync/internal/statedb"
)

// side names which physical tree a generic "propagate/mkdir/delete"
// helper resolves to.
type side int

const (
	sideLocal side = iota
	sideRemote
)

// PlanOption configures optional Plan behavior beyond its required
// arguments.
type PlanOption func(*planConfig)

type planConfig struct {
	conflictSink func(Conflict)
}

// WithConflictSink registers a callback invoked once per impossible
// change combination Plan encounters, in addition to the warning Plan
// always logs. Used by callers that want to persist a conflict ledger
// (spec.md §9 "Conflict ledger") without Plan itself depending on any
// particular storage.
func WithConflictSink(sink func(Conflict)) PlanOption {
	return func(c *planConfig) { c.conflictSink = sink }
}

// Plan walks the union of local and remote, combining each path's
// (local_change, remote_change) under strategy, and returns the ordered
// list of actions the executor should run (spec.md §4.4). Actions are
// not yet ordered for execution — see internal/executor's prefix
// ordering predicate for that.
func Plan(
	ctx context.Context, store statedb.Store, local, remote *changetree.Node, strategy ConflictStrategy,
	logger *slog.Logger, opts ...PlanOption,
) ([]SyncAction, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var cfg planConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var actions []SyncAction

	var walk func(path string, localNode, remoteNode *changetree.Node) error

	walk = func(path string, localNode, remoteNode *changetree.Node) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		prevEntry, _, err := store.Get(ctx, path)
		if err != nil {
			return fmt.Errorf("planner: db get %s: %w", path, err)
		}

		cellActions, err := decide(path, localNode, remoteNode, prevEntry, strategy, logger, cfg.conflictSink)
		if err != nil {
			return err
		}

		actions = append(actions, cellActions...)

		names := unionNames(localNode, remoteNode)
		for _, name := range names {
			var lc, rc *changetree.Node
			if localNode != nil {
				lc = localNode.Children[name]
			}

			if remoteNode != nil {
				rc = remoteNode.Children[name]
			}

			if err := walk(model.Join(path, name), lc, rc); err != nil {
				return err
			}
		}

		return nil
	}

	if err := walk(model.RootMarkerPath, local, remote); err != nil {
		return nil, err
	}

	return actions, nil
}

func unionNames(localNode, remoteNode *changetree.Node) []string {
	seen := map[string]bool{}

	var names []string

	if localNode != nil {
		for name := range localNode.Children {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}

	if remoteNode != nil {
		for name := range remoteNode.Children {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}

	sort.Strings(names)

	return names
}

func changeOf(n *changetree.Node) changetree.Change {
	if n == nil {
		return changetree.ChangeUnknown
	}

	return n.Change
}

func effectiveKind(localNode, remoteNode *changetree.Node) model.Kind {
	if localNode != nil && localNode.Kind != model.KindInvalid {
		return localNode.Kind
	}

	if remoteNode != nil {
		return remoteNode.Kind
	}

	return model.KindInvalid
}

// decide applies spec.md §4.4's full decision matrix to one path,
// expressed generically in terms of the strategy's preferred
// ("primary") and other ("secondary") side so local-wins and
// remote-wins share one implementation.
func decide(
	path string, localNode, remoteNode *changetree.Node, prevEntry model.SyncStateEntry,
	strategy ConflictStrategy, logger *slog.Logger, conflictSink func(Conflict),
) ([]SyncAction, error) {
	localChange, remoteChange := changeOf(localNode), changeOf(remoteNode)
	kind := effectiveKind(localNode, remoteNode)

	primarySide, secondarySide := sideLocal, sideRemote
	primaryChange, secondaryChange := localChange, remoteChange
	primaryNode, secondaryNode := localNode, remoteNode

	if !strategy.PreferLocal() {
		primarySide, secondarySide = sideRemote, sideLocal
		primaryChange, secondaryChange = remoteChange, localChange
		primaryNode, secondaryNode = remoteNode, localNode
	}

	warn := func(msg string) {
		logger.Warn("planner: impossible change combination",
			slog.String("path", path),
			slog.String("local_change", localChange.String()),
			slog.String("remote_change", remoteChange.String()),
			slog.String("strategy", strategy.Name()),
			slog.String("detail", msg),
		)

		if conflictSink != nil {
			conflictSink(Conflict{
				Path:         path,
				LocalChange:  localChange.String(),
				RemoteChange: remoteChange.String(),
				Strategy:     strategy.Name(),
				Detail:       msg,
			})
		}
	}

	propagate := func(fromSide side) SyncAction {
		if fromSide == sideLocal {
			a := SyncAction{Kind: ActionUploadFile, Path: path, PathKind: kind, PrevEntry: prevEntry}
			if localNode != nil {
				a.LocalMtime = localNode.Mtime
			}

			if !strategy.PreferLocal() {
				a.ExpectedSyncAttr = prevEntry.SyncAttr
			}

			return a
		}

		a := SyncAction{Kind: ActionDownloadFile, Path: path, PathKind: kind, PrevEntry: prevEntry}
		if remoteNode != nil {
			a.ExpectedSyncAttr = remoteNode.SyncAttr
		} else {
			a.ExpectedSyncAttr = prevEntry.SyncAttr
		}

		return a
	}

	mkdirOn := func(onSide side) SyncAction {
		if onSide == sideLocal {
			a := SyncAction{Kind: ActionMkDirLocal, Path: path, PathKind: kind}
			if remoteNode != nil {
				a.RemoteSyncAttr = remoteNode.SyncAttr
			}

			return a
		}

		return SyncAction{Kind: ActionMkDirRemote, Path: path, PathKind: kind}
	}

	deleteOn := func(onSide side) SyncAction {
		k := ActionDeleteLocal
		if onSide == sideRemote {
			k = ActionDeleteRemote
		}

		return SyncAction{Kind: k, Path: path, PathKind: kind, PrevEntry: prevEntry}
	}

	// winPropagate materializes the primary side's create/change on the
	// secondary side: MkDir on secondary for a directory, Upload/Download
	// of primary's content for a file.
	winPropagate := func() SyncAction {
		if kind == model.KindDirectory {
			return mkdirOn(secondarySide)
		}

		return propagate(primarySide)
	}

	// receivePropagate brings the secondary side's create/change onto
	// the primary side, for the (non-conflicting) case where primary
	// made no competing claim at this path.
	receivePropagate := func() SyncAction {
		if kind == model.KindDirectory {
			return mkdirOn(primarySide)
		}

		return propagate(secondarySide)
	}

	switch primaryChange {
	case changetree.ChangeUnknown:
		switch secondaryChange {
		case changetree.ChangeUnknown:
			return nil, nil
		case changetree.ChangeCreated, changetree.ChangeChanged:
			return []SyncAction{receivePropagate()}, nil
		case changetree.ChangeDeleted:
			if kind == model.KindDirectory && primaryNode != nil && primaryNode.HasLiveCreatedDescendant() {
				return []SyncAction{mkdirOn(secondarySide)}, nil
			}

			return []SyncAction{deleteOn(primarySide)}, nil
		}
	case changetree.ChangeCreated:
		switch secondaryChange {
		case changetree.ChangeUnknown:
			return []SyncAction{winPropagate()}, nil
		case changetree.ChangeCreated:
			if localNode != nil && remoteNode != nil && localNode.Kind != remoteNode.Kind {
				return []SyncAction{deleteOn(secondarySide), winPropagate()}, nil
			}

			return []SyncAction{winPropagate()}, nil
		case changetree.ChangeChanged, changetree.ChangeDeleted:
			warn("created on one side, " + secondaryChange.String() + " on the other, at a path with no prior entry")
			return nil, nil
		}
	case changetree.ChangeChanged:
		switch secondaryChange {
		case changetree.ChangeUnknown, changetree.ChangeChanged:
			return []SyncAction{propagate(primarySide)}, nil
		case changetree.ChangeCreated:
			warn("changed on one side, created on the other")
			return nil, nil
		case changetree.ChangeDeleted:
			if kind == model.KindDirectory {
				warn("changed directory raced a deletion on the other side")
				return nil, nil
			}

			return []SyncAction{propagate(primarySide)}, nil
		}
	case changetree.ChangeDeleted:
		switch secondaryChange {
		case changetree.ChangeUnknown:
			return []SyncAction{deleteOn(secondarySide)}, nil
		case changetree.ChangeCreated:
			warn("deleted on one side, created on the other, at a previously-known path")
			return nil, nil
		case changetree.ChangeChanged:
			if secondaryNode != nil && secondaryNode.HasLiveCreatedDescendant() {
				return []SyncAction{mkdirOn(primarySide)}, nil
			}

			return []SyncAction{deleteOn(secondarySide)}, nil
		case changetree.ChangeDeleted:
			return nil, nil
		}
	}

	return nil, nil
}
