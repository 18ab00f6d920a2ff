package conversation

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFlagStore(t *testing.T) (*FlagStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewFlagStore(client, nil), mr
}

func TestFlagStoreCreateAndPending(t *testing.T) {
	store, _ := newTestFlagStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "whatsapp:447700900123", "+447700900123", "Sarah", SentimentResult{
		Sentiment:      SentimentAngry,
		Confidence:     0.9,
		Signals:        []string{"anger_escalation"},
		RequiresReview: true,
	})
	require.NoError(t, err)
	assert.Len(t, id, 8)

	flags, err := store.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, flags, 1)

	flag := flags[0]
	assert.Equal(t, id, flag.ID)
	assert.Equal(t, "whatsapp:447700900123", flag.ConversationID)
	assert.Equal(t, "Sarah", flag.CustomerName)
	assert.Equal(t, SentimentAngry, flag.Sentiment)
	assert.Equal(t, FlagUrgencyUrgent, flag.Urgency)
	assert.Equal(t, []string{"anger_escalation"}, flag.Signals)
	assert.Equal(t, 0.9, flag.Confidence)
	assert.False(t, flag.Reviewed)
	assert.False(t, flag.CreatedAt.IsZero())
}

func TestFlagStorePendingNewestFirst(t *testing.T) {
	store, _ := newTestFlagStore(t)
	ctx := context.Background()

	first, err := store.Create(ctx, "c1", "+447700900001", "", SentimentResult{Sentiment: SentimentFrustrated})
	require.NoError(t, err)
	second, err := store.Create(ctx, "c2", "+447700900002", "", SentimentResult{Sentiment: SentimentPriceShocked})
	require.NoError(t, err)

	flags, err := store.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, flags, 2)
	assert.Equal(t, second, flags[0].ID)
	assert.Equal(t, first, flags[1].ID)
}

func TestFlagStoreUnknownNameDefaults(t *testing.T) {
	store, _ := newTestFlagStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "c1", "+447700900001", "", SentimentResult{Sentiment: SentimentConcerned})
	require.NoError(t, err)

	flags, err := store.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, id, flags[0].ID)
	assert.Equal(t, "Unknown", flags[0].CustomerName)
	assert.Equal(t, FlagUrgencyNormal, flags[0].Urgency)
}

func TestFlagStoreMarkReviewed(t *testing.T) {
	store, _ := newTestFlagStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "c1", "+447700900001", "Sarah", SentimentResult{Sentiment: SentimentAngry})
	require.NoError(t, err)

	ok, err := store.MarkReviewed(ctx, id, "called the customer back")
	require.NoError(t, err)
	assert.True(t, ok)

	flags, err := store.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, flags)
}

func TestFlagStoreMarkReviewedMissing(t *testing.T) {
	store, _ := newTestFlagStore(t)

	ok, err := store.MarkReviewed(context.Background(), "nope1234", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFlagStorePendingSkipsExpired(t *testing.T) {
	store, mr := newTestFlagStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "c1", "+447700900001", "Sarah", SentimentResult{Sentiment: SentimentAngry})
	require.NoError(t, err)

	// The hash expires after seven days; the queue entry may outlive it.
	mr.Del(fmt.Sprintf("flag:%s", id))

	flags, err := store.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, flags)
}

func TestFlagUrgencyMapping(t *testing.T) {
	assert.Equal(t, FlagUrgencyUrgent, flagUrgencyFor(SentimentAngry))
	assert.Equal(t, FlagUrgencyHigh, flagUrgencyFor(SentimentFrustrated))
	assert.Equal(t, FlagUrgencyHigh, flagUrgencyFor(SentimentPriceShocked))
	assert.Equal(t, FlagUrgencyNormal, flagUrgencyFor(SentimentNeutral))
}
