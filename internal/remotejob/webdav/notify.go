package webdav

import (
	"context"
	"log/slog"
	"time"

	"github.com/coder/websocket"
)

// NotifyFunc is called once per server-sent change notification. The
// caller (the sync loop) uses it only to trigger a discrete re-sync
// sooner than its normal poll interval; it carries no information about
// what changed.
type NotifyFunc func()

// WatchNotifications opens a websocket connection to a server-sent
// change-notification endpoint (some WebDAV servers, e.g. Nextcloud,
// expose one alongside the DAV endpoint itself) and calls notify each
// time a message arrives, until ctx is canceled. It reconnects with a
// fixed backoff on error.
//
// This never streams or interprets the changed resources themselves —
// only DownloadFile/ListFiles/GetFileInfo do that, through the ordinary
// folder-sync-attribute comparison. A dropped or delayed notification
// only delays how soon the next scheduled sync starts; it cannot produce
// a wrong sync result.
func WatchNotifications(ctx context.Context, endpoint string, notify NotifyFunc, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	const reconnectDelay = 5 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		if err := watchOnce(ctx, endpoint, notify, logger); err != nil {
			logger.Warn("change notification connection dropped",
				slog.String("endpoint", endpoint),
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func watchOnce(ctx context.Context, endpoint string, notify NotifyFunc, logger *slog.Logger) error {
	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return err
	}
	defer conn.CloseNow() //nolint:errcheck // best-effort on an already-failed connection

	logger.Debug("change notification connected", slog.String("endpoint", endpoint))

	for {
		_, _, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		notify()
	}
}
