package queue

import (
	"context"
	"fmt"
	"log/slog"
)

// Handler processes one queue message.
type Handler func(ctx context.Context, msg Message) error

// Fanout runs the handler for every message concurrently and collects a
// failure set keyed by message ID. One item's error or panic never prevents
// its siblings from completing; the caller reports the failed set so only
// those messages are redelivered.
func Fanout(ctx context.Context, msgs []Message, handler Handler, logger *slog.Logger) *BatchResult {
	if logger == nil {
		logger = slog.Default()
	}

	result := NewBatchResult()
	if handler == nil {
		for _, msg := range msgs {
			result.Fail(msg.ID)
		}
		return result
	}

	if len(msgs) == 0 {
		return result
	}

	done := make(chan struct{})

	for _, msg := range msgs {
		go func(msg Message) {
			defer func() {
				if r := recover(); r != nil {
					result.Fail(msg.ID)
					logger.ErrorContext(ctx, "queue handler panicked",
						slog.String("message_id", msg.ID),
						slog.Any("panic", r))
				}
				done <- struct{}{}
			}()

			if err := handler(ctx, msg); err != nil {
				result.Fail(msg.ID)
				logger.ErrorContext(ctx, "queue message failed",
					slog.String("message_id", msg.ID),
					slog.String("error", err.Error()))
			}
		}(msg)
	}

	for range msgs {
		<-done
	}

	if !result.Empty() {
		logger.WarnContext(ctx, "batch completed with failures",
			slog.Int("total", len(msgs)),
			slog.String("failed_ids", fmt.Sprintf("%v", result.FailedIDs())))
	}

	return result
}
