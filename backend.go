package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/foldersync/foldersync/internal/config"
	"github.com/foldersync/foldersync/internal/credstore"
	"github.com/foldersync/foldersync/internal/remotejob"
	"github.com/foldersync/foldersync/internal/remotejob/dropboxapi"
	"github.com/foldersync/foldersync/internal/remotejob/webdav"
	"github.com/foldersync/foldersync/internal/statedb"
	"github.com/foldersync/foldersync/internal/statedb/sqlitestore"
)

// httpClientTimeout bounds metadata requests (listing, stat, mkdir,
// delete). Transfers are bounded by context cancellation instead, so
// uploads/downloads use a client with no fixed timeout.
const httpClientTimeout = 30 * time.Second

func metadataHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

func transferHTTPClient() *http.Client {
	return &http.Client{Timeout: 0}
}

// webdavTokenSource adapts an oauth2.TokenSource to webdav.TokenSource,
// which only needs the bearer string, not the full token envelope.
type webdavTokenSource struct{ ts oauth2.TokenSource }

func (w webdavTokenSource) Token() (string, error) {
	tok, err := w.ts.Token()
	if err != nil {
		return "", err
	}

	return tok.AccessToken, nil
}

// loadTokenSource reads a profile's stored credentials and wraps them in a
// static oauth2.TokenSource. Remotes reached through this CLI authenticate
// with a long-lived token or app password the user pastes via `login`
// (spec.md §1 puts the interactive OAuth consent flow itself out of
// scope) so no refresh round-trip is wired in here.
func loadTokenSource(credPath string) (oauth2.TokenSource, error) {
	tok, _, err := credstore.Load(credPath)
	if err != nil {
		return nil, err
	}

	if tok == nil {
		return nil, fmt.Errorf("not logged in — run `foldersync login` first")
	}

	return oauth2.StaticTokenSource(tok), nil
}

// buildJobFactory constructs the remotejob.JobFactory for profile's
// configured remote kind, wiring in whichever HTTP client matches the
// caller's intended use (metadata calls vs. long-running transfers).
func buildJobFactory(profile *config.ResolvedProfile, credPath string, hc *http.Client, logger *slog.Logger) (remotejob.JobFactory, error) {
	ts, err := loadTokenSource(credPath)
	if err != nil {
		return nil, err
	}

	switch profile.Remote.Kind {
	case "webdav":
		workarounds := webdav.Workarounds{
			NoRecursiveFolderETags:                   profile.Remote.WebDAV.NoRecursiveFolderETags,
			InconsistentETagsUsingPROPFINDAndGET:     profile.Remote.WebDAV.InconsistentETagsUsingPROPFINDAndGET,
			DerivePROPFINDETagsFromGETETagsForApache: profile.Remote.WebDAV.DerivePROPFINDETagsFromGETETagsForApache,
		}

		return webdav.New(profile.Remote.Endpoint, hc, webdavTokenSource{ts}, workarounds, logger)
	case "dropboxapi", "dropbox":
		return dropboxapi.New(hc, ts, logger), nil
	default:
		return nil, fmt.Errorf("remote.kind %q: must be \"webdav\" or \"dropboxapi\"", profile.Remote.Kind)
	}
}

// openStore opens the sync-state database for profile, creating its parent
// directory and schema on first use.
func openStore(profile *config.ResolvedProfile, logger *slog.Logger) statedb.Store {
	return sqlitestore.New(config.ProfileDBPath(profile.Name), logger)
}
