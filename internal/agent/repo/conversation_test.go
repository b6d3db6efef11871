package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokyo-trip-assistant/server/internal/agent/model"
)

func newTestRepo(t *testing.T, ttl time.Duration, maxStored int) (*RedisConversationRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisConversationRepository(rdb, ttl, maxStored), mr
}

func TestAppendAndHistoryPreservesOrder(t *testing.T) {
	repo, _ := newTestRepo(t, time.Minute, 100)
	ctx := context.Background()

	require.NoError(t, repo.AppendTurns(ctx, "s1", model.NewTurn(model.RoleUser, "hello")))
	require.NoError(t, repo.AppendTurns(ctx, "s1", model.NewTurn(model.RoleAssistant, "hi there")))
	require.NoError(t, repo.AppendTurns(ctx, "s1", model.NewTurn(model.RoleUser, "any temples nearby?")))

	h, err := repo.History(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, h.Turns, 3)
	assert.Equal(t, model.RoleUser, h.Turns[0].Role)
	assert.Equal(t, "hello", h.Turns[0].Content)
	assert.Equal(t, "hi there", h.Turns[1].Content)
	assert.Equal(t, "any temples nearby?", h.Turns[2].Content)
}

func TestAppendStoresExchangeTogether(t *testing.T) {
	repo, _ := newTestRepo(t, time.Minute, 100)
	ctx := context.Background()

	require.NoError(t, repo.AppendTurns(ctx, "s1",
		model.NewTurn(model.RoleUser, "any temples nearby?"),
		model.NewTurn(model.RoleAssistant, "Senso-ji is close by."),
	))

	h, err := repo.History(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, h.Turns, 2)
	assert.Equal(t, model.RoleUser, h.Turns[0].Role)
	assert.Equal(t, model.RoleAssistant, h.Turns[1].Role)

	// appending nothing is a no-op and creates no session
	require.NoError(t, repo.AppendTurns(ctx, "s2"))
	n, err := repo.TurnCount(ctx, "s2")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHistoryReturnsMostRecentTail(t *testing.T) {
	repo, _ := newTestRepo(t, time.Minute, 100)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		turn := model.NewTurn(model.RoleUser, fmt.Sprintf("turn-%d", i))
		require.NoError(t, repo.AppendTurns(ctx, "s1", turn))
	}

	h, err := repo.History(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, h.Turns, 2)
	assert.Equal(t, "turn-4", h.Turns[0].Content)
	assert.Equal(t, "turn-5", h.Turns[1].Content)
}

func TestHistoryUnknownSessionIsEmpty(t *testing.T) {
	repo, _ := newTestRepo(t, time.Minute, 100)

	h, err := repo.History(context.Background(), "missing", 10)
	require.NoError(t, err)
	assert.Equal(t, "missing", h.SessionID)
	assert.Empty(t, h.Turns)
}

func TestAppendTrimsToMaxStoredTurns(t *testing.T) {
	repo, _ := newTestRepo(t, time.Minute, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.AppendTurns(ctx, "s1", model.NewTurn(model.RoleUser, fmt.Sprintf("turn-%d", i))))
	}

	n, err := repo.TurnCount(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	h, err := repo.History(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, h.Turns, 3)
	assert.Equal(t, "turn-2", h.Turns[0].Content)
	assert.Equal(t, "turn-4", h.Turns[2].Content)
}

func TestAppendRefreshesTTL(t *testing.T) {
	repo, mr := newTestRepo(t, 10*time.Minute, 100)
	ctx := context.Background()

	require.NoError(t, repo.AppendTurns(ctx, "s1", model.NewTurn(model.RoleUser, "hello")))
	assert.Equal(t, 10*time.Minute, mr.TTL("session:s1:turns"))

	mr.FastForward(5 * time.Minute)
	require.NoError(t, repo.AppendTurns(ctx, "s1", model.NewTurn(model.RoleUser, "still here")))
	assert.Equal(t, 10*time.Minute, mr.TTL("session:s1:turns"))
}

func TestIdleSessionExpires(t *testing.T) {
	repo, mr := newTestRepo(t, time.Minute, 100)
	ctx := context.Background()

	require.NoError(t, repo.AppendTurns(ctx, "s1", model.NewTurn(model.RoleUser, "hello")))
	mr.FastForward(2 * time.Minute)

	h, err := repo.History(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, h.Turns)
}

func TestEvictRemovesSession(t *testing.T) {
	repo, _ := newTestRepo(t, time.Minute, 100)
	ctx := context.Background()

	require.NoError(t, repo.AppendTurns(ctx, "s1", model.NewTurn(model.RoleUser, "hello")))
	require.NoError(t, repo.Evict(ctx, "s1"))

	n, err := repo.TurnCount(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, n)

	// evicting an unknown session is a no-op
	require.NoError(t, repo.Evict(ctx, "nope"))
}
