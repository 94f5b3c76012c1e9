package daily

import (
	"context"
	"time"

	"gardenwatch/internal/alerts"
	"gardenwatch/internal/types"
)

var _ alerts.NotificationStore = (*buffer)(nil)

// buffer collects one run's writes. Dedup queries see pending notifications
// before falling through to the repository, so a rule cannot fire twice for
// the same plantation inside a run even though nothing is committed yet.
type buffer struct {
	reader        NotificationReader
	snapshots     []types.Snapshot
	notifications []*types.Notification
}

func newBuffer(reader NotificationReader) *buffer {
	return &buffer{reader: reader}
}

func (b *buffer) HasRecentNotification(ctx context.Context, plantationID string, t types.NotificationType, since time.Time) (bool, error) {
	for _, n := range b.notifications {
		if matches(n, plantationID, t) && !n.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return b.reader.HasRecentNotification(ctx, plantationID, t, since)
}

func (b *buffer) HasUnreadNotification(ctx context.Context, plantationID string, t types.NotificationType) (bool, error) {
	for _, n := range b.notifications {
		if matches(n, plantationID, t) && !n.Read {
			return true, nil
		}
	}
	return b.reader.HasUnreadNotification(ctx, plantationID, t)
}

func (b *buffer) Create(_ context.Context, n *types.Notification) error {
	b.notifications = append(b.notifications, n)
	return nil
}

func (b *buffer) addSnapshot(s types.Snapshot) {
	b.snapshots = append(b.snapshots, s)
}

func (b *buffer) dirty() bool {
	return len(b.snapshots) > 0 || len(b.notifications) > 0
}

func matches(n *types.Notification, plantationID string, t types.NotificationType) bool {
	return n.Type == t && n.PlantationID != nil && *n.PlantationID == plantationID
}
