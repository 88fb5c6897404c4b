package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bsc-custody.backend/internal/domain/entities"
	"bsc-custody.backend/pkg/redis"
)

const (
	channelPrefix     = "notifications:user:"
	inboxPrefix       = "notifications:inbox:"
	defaultInboxLimit = 100
	defaultInboxTTL   = 30 * 24 * time.Hour
)

var nowFn = time.Now

// RedisNotifier publishes user notifications on a per-user channel and keeps a capped inbox list
type RedisNotifier struct {
	inboxLimit int64
	inboxTTL   time.Duration
}

// NewRedisNotifier creates a notifier backed by the package-level redis client
func NewRedisNotifier() *RedisNotifier {
	return &RedisNotifier{
		inboxLimit: defaultInboxLimit,
		inboxTTL:   defaultInboxTTL,
	}
}

// ChannelFor returns the pub/sub channel of a user
func ChannelFor(userID uuid.UUID) string {
	return channelPrefix + userID.String()
}

func inboxKey(userID uuid.UUID) string {
	return inboxPrefix + userID.String()
}

// Notify stores the notification in the user's inbox, then publishes it
func (n *RedisNotifier) Notify(ctx context.Context, notification *entities.Notification) error {
	if notification == nil || notification.UserID == uuid.Nil {
		return fmt.Errorf("notification requires a user")
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = nowFn().UTC()
	}

	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	if err := redis.PushCapped(ctx, inboxKey(notification.UserID), payload, n.inboxLimit, n.inboxTTL); err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}
	if err := redis.Publish(ctx, ChannelFor(notification.UserID), payload); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Recent returns up to limit notifications, newest first. Undecodable entries are skipped.
func (n *RedisNotifier) Recent(ctx context.Context, userID uuid.UUID, limit int) ([]*entities.Notification, error) {
	if limit <= 0 || int64(limit) > n.inboxLimit {
		limit = int(n.inboxLimit)
	}
	raw, err := redis.ListRange(ctx, inboxKey(userID), 0, int64(limit-1))
	if err != nil {
		return nil, err
	}

	out := make([]*entities.Notification, 0, len(raw))
	for _, item := range raw {
		var notification entities.Notification
		if err := json.Unmarshal([]byte(item), &notification); err != nil {
			continue
		}
		out = append(out, &notification)
	}
	return out, nil
}
