package graph

import (
	"context"
	"fmt"

	"github.com/entrhq/chronicle/pkg/logging"
)

// Prepare runs the session-start lifecycle of the fact store:
// build indices, optionally clear all data, and rebuild indices after a
// clear. The rebuild is mandatory whenever a clear occurs, because clearing
// can invalidate previously built indices.
//
// A failing initial index build is non-fatal when no clear was requested:
// indices typically already exist in a usable state, so the failure is
// logged and the session continues. A failing clear or post-clear rebuild
// is returned, since the caller explicitly asked for a clean start and did
// not get one.
func Prepare(ctx context.Context, store Store, clearData bool) error {
	log, _ := logging.NewLogger("lifecycle")

	if err := store.BuildIndices(ctx); err != nil {
		if !clearData {
			log.Warnf("index build failed, continuing with existing indices: %v", err)
			return nil
		}
		return fmt.Errorf("index build failed before clear: %w", err)
	}

	if !clearData {
		return nil
	}

	if err := store.ClearData(ctx); err != nil {
		return fmt.Errorf("clean start failed: %w", err)
	}

	if err := store.BuildIndices(ctx); err != nil {
		return fmt.Errorf("index rebuild after clear failed: %w", err)
	}

	return nil
}
