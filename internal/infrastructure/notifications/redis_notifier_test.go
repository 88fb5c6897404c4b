package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"bsc-custody.backend/internal/domain/entities"
	"bsc-custody.backend/pkg/redis"
)

func setupRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	redis.SetClient(client)
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr
}

func TestRedisNotifier_NotifyAndRecent(t *testing.T) {
	mr := setupRedis(t)
	ctx := context.Background()
	userID := uuid.New()

	sub := redis.GetClient().Subscribe(ctx, ChannelFor(userID))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	notifier := NewRedisNotifier()
	require.NoError(t, notifier.Notify(ctx, &entities.Notification{
		UserID:  userID,
		Type:    entities.NotificationDepositConfirmed,
		Title:   "Deposit confirmed",
		Message: "50 USDT credited",
		Data:    map[string]interface{}{"txHash": "0xabc"},
	}))

	select {
	case msg := <-sub.Channel():
		require.Contains(t, msg.Payload, "deposit_confirmed")
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not published")
	}

	require.NoError(t, notifier.Notify(ctx, &entities.Notification{UserID: userID, Type: entities.NotificationSweepCompleted, Title: "second"}))

	recent, err := notifier.Recent(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "second", recent[0].Title)
	require.False(t, recent[1].CreatedAt.IsZero())
	require.True(t, mr.TTL(inboxKey(userID)) > 0)
}

func TestRedisNotifier_CapsInbox(t *testing.T) {
	setupRedis(t)
	ctx := context.Background()
	userID := uuid.New()

	notifier := &RedisNotifier{inboxLimit: 3, inboxTTL: time.Hour}
	for i := 0; i < 5; i++ {
		require.NoError(t, notifier.Notify(ctx, &entities.Notification{UserID: userID, Type: entities.NotificationDepositPending}))
	}

	n, err := redis.GetClient().LLen(ctx, inboxKey(userID)).Result()
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	recent, err := notifier.Recent(ctx, userID, 0)
	require.NoError(t, err)
	require.Len(t, recent, 3)
}

func TestRedisNotifier_Errors(t *testing.T) {
	mr := setupRedis(t)
	notifier := NewRedisNotifier()

	require.Error(t, notifier.Notify(context.Background(), nil))
	require.Error(t, notifier.Notify(context.Background(), &entities.Notification{}))

	mr.Close()
	err := notifier.Notify(context.Background(), &entities.Notification{UserID: uuid.New()})
	require.ErrorContains(t, err, "failed to store notification")
}
