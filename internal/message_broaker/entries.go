package message_broaker

import (
	"context"
	"encoding/json"

	"github.com/RezaEskandarii/cronctl/types"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// PublishEntries publishes each entry as its own message so consumers can
// share a batch. It stops at the first failure and reports how many went out.
func PublishEntries(ctx context.Context, broker MessageBroker, entries []types.QueueEntry) (int, error) {
	for i, entry := range entries {
		payload, err := json.Marshal(entry)
		if err != nil {
			return i, errors.Wrap(err, "encode queue entry")
		}
		if err := broker.Publish(ctx, payload); err != nil {
			return i, err
		}
	}
	return len(entries), nil
}

// ConsumeEntries decodes queue entries off the broker. Messages that do not
// decode into a complete entry are logged and dropped.
func ConsumeEntries(ctx context.Context, broker MessageBroker, logger zerolog.Logger) (<-chan types.QueueEntry, error) {
	msgs, err := broker.Consume(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan types.QueueEntry)
	go func() {
		defer close(out)
		for {
			var msg []byte
			select {
			case m, ok := <-msgs:
				if !ok {
					return
				}
				msg = m
			case <-ctx.Done():
				return
			}

			var entry types.QueueEntry
			if err := json.Unmarshal(msg, &entry); err != nil {
				logger.Warn().Err(err).Msg("dropping undecodable queue message")
				continue
			}
			if entry.Timestamp <= 0 || entry.ActionHashed == "" || entry.Instance == "" {
				logger.Warn().Bytes("message", msg).Msg("dropping incomplete queue entry")
				continue
			}
			select {
			case out <- entry:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
