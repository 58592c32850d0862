// Package notify delivers owner-facing notices about terminal upload
// failures to the notifications queue. Delivery is fire-and-forget; a
// broken notifier never blocks compensation.
package notify

import (
	"context"

	"github.com/voluntr/media-workers/internal/logging"
	"github.com/voluntr/media-workers/internal/messages"
	"github.com/voluntr/media-workers/internal/queue"
)

type QueueNotifier struct {
	pub *queue.Publisher
	log logging.Logger
}

func NewQueueNotifier(pub *queue.Publisher, log logging.Logger) *QueueNotifier {
	return &QueueNotifier{pub: pub, log: log}
}

func (n *QueueNotifier) UploadFailed(ctx context.Context, kind string, entityID int64, reason string) {
	m := messages.UploadFailedNotice{EntityKind: kind, EntityID: entityID, Reason: reason}
	if err := n.pub.PublishJSON(ctx, queue.NotificationsQueue, m); err != nil {
		n.log.Error(ctx, "failed to publish upload-failed notice",
			"kind", kind, "entity_id", entityID, "error", err)
	}
}
