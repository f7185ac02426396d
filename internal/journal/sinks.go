package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// StoreSink upserts every entry into a queryable store.
func StoreSink(store domain.JournalStore) Sink {
	return func(ctx context.Context, e domain.JournalEntry) error {
		return store.Upsert(ctx, e)
	}
}

// BusSink publishes every entry on channel and appends it to stream. Either
// name may be empty to skip that half.
func BusSink(bus domain.EventBus, channel, stream string) Sink {
	return func(ctx context.Context, e domain.JournalEntry) error {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("journal: marshal: %w", err)
		}
		if channel != "" {
			if err := bus.Publish(ctx, channel, payload); err != nil {
				return err
			}
		}
		if stream != "" {
			if err := bus.StreamAppend(ctx, stream, payload); err != nil {
				return err
			}
		}
		return nil
	}
}
