// Package redisfeed mirrors committed document changes onto Redis pub/sub so
// sibling processes can follow the store without holding a subscription on
// the engine itself. One JSON message per touched document, published to
// "docstore:<collection>".
package redisfeed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"rosterd/internal/docstore"
	"rosterd/internal/docstore/memory"
	"rosterd/internal/platform/redis"
)

// ChannelPrefix prefixes the per-collection pub/sub channel names.
const ChannelPrefix = "docstore:"

// Message is the published wire format.
type Message struct {
	Collection string            `json:"collection"`
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	Doc        docstore.Document `json:"doc,omitempty"`
	At         time.Time         `json:"at"`
}

// Feed publishes commit events. Publishing is best-effort: a failed publish
// is logged and the commit proceeds unaffected.
type Feed struct {
	client *redis.Client
	log    zerolog.Logger
}

// New builds a Feed over an established Redis client.
func New(client *redis.Client, log zerolog.Logger) *Feed {
	return &Feed{client: client, log: log}
}

// Hook returns the commit hook to install on the engine.
func (f *Feed) Hook() memory.CommitHook {
	return func(events []memory.CommitEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for _, ev := range events {
			f.publish(ctx, ev)
		}
	}
}

func (f *Feed) publish(ctx context.Context, ev memory.CommitEvent) {
	msg := Message{
		Collection: ev.Collection,
		ID:         ev.ID,
		Kind:       ev.Kind.String(),
		At:         time.Now().UTC(),
	}
	if ev.Kind != docstore.ChangeRemoved {
		msg.Doc = ev.Doc
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		f.log.Error().Err(err).Str("collection", ev.Collection).Msg("changefeed marshal failed")
		return
	}
	if err := f.client.Publish(ctx, ChannelPrefix+ev.Collection, payload).Err(); err != nil {
		f.log.Warn().Err(err).Str("collection", ev.Collection).Msg("changefeed publish failed")
	}
}
