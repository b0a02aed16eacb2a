package notifier

import (
	"context"
	"log/slog"

	"chirp/internal/core/contracts"
)

// Notifier drains the notification queue and hands each entry to the
// dispatcher. Dispatch is best effort: a failed push is logged and the entry
// is acknowledged anyway, because a fallback notification is worthless once
// it is stale and must never be retried into a dead call or a read message.
type Notifier struct {
	log        *slog.Logger
	queue      contracts.NotificationQueue
	dispatcher contracts.NotificationDispatcher
	group      string
}

func NewNotifier(
	log *slog.Logger,
	queue contracts.NotificationQueue,
	dispatcher contracts.NotificationDispatcher,
	group string,
) *Notifier {
	return &Notifier{
		log:        log,
		queue:      queue,
		dispatcher: dispatcher,
		group:      group,
	}
}

func (w *Notifier) Run(ctx context.Context) error {
	if err := w.queue.Subscribe(ctx, w.group, w.Process); err != nil {
		return err
	}
	w.log.InfoContext(ctx, "notifier - run - subscribed", "group", w.group)
	return nil
}

func (w *Notifier) Process(ctx context.Context, entryID string, n contracts.Notification) error {
	if err := w.dispatcher.Dispatch(ctx, n); err != nil {
		w.log.ErrorContext(ctx, "notifier - process - dispatch failed", "entry_id", entryID, "recipient", n.Recipient, "type", n.Type, "err", err)
	}
	if err := w.queue.Acknowledge(ctx, w.group, entryID); err != nil {
		w.log.ErrorContext(ctx, "notifier - process - acknowledge failed", "entry_id", entryID, "err", err)
		return err
	}
	// XDEL keeps the stream memory-efficient; the entry is already ACKed.
	if err := w.queue.DeleteEntry(ctx, entryID); err != nil {
		w.log.ErrorContext(ctx, "notifier - process - delete failed", "entry_id", entryID, "err", err)
	}
	return nil
}
