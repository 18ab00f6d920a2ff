package leads

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryUpsertAndGet(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	lead := &Lead{Name: "Sarah", Phone: "+447700900123"}
	require.NoError(t, repo.Upsert(ctx, lead))
	assert.NotEmpty(t, lead.ID)

	got, err := repo.GetByPhone(ctx, "+447700900123")
	require.NoError(t, err)
	assert.Equal(t, "Sarah", got.Name)

	byID, err := repo.GetByID(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, lead.ID, byID.ID)
}

func TestInMemoryUpsertKeepsIDForSamePhone(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	first := &Lead{Name: "Sarah", Phone: "+447700900123"}
	require.NoError(t, repo.Upsert(ctx, first))

	second := &Lead{Name: "Sarah Mitchell", Phone: "+447700900123"}
	require.NoError(t, repo.Upsert(ctx, second))

	assert.Equal(t, first.ID, second.ID)
	got, err := repo.GetByPhone(ctx, "+447700900123")
	require.NoError(t, err)
	assert.Equal(t, "Sarah Mitchell", got.Name)
}

func TestInMemoryGetMissing(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	_, err := repo.GetByPhone(ctx, "+440000000000")
	assert.ErrorIs(t, err, ErrLeadNotFound)
	_, err = repo.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, ErrLeadNotFound)
}

func TestInMemoryReturnsCopies(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &Lead{Name: "Sarah", Phone: "+447700900123"}))
	got, err := repo.GetByPhone(ctx, "+447700900123")
	require.NoError(t, err)
	got.Name = "mutated"

	again, err := repo.GetByPhone(ctx, "+447700900123")
	require.NoError(t, err)
	assert.Equal(t, "Sarah", again.Name)
}

func TestInMemoryList(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	for _, phone := range []string{"+447700900001", "+447700900002", "+447700900003"} {
		require.NoError(t, repo.Upsert(ctx, &Lead{Phone: phone}))
	}

	all, err := repo.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := repo.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestCreateValidation(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	_, err := repo.Create(ctx, &CreateLeadRequest{Email: "a@b.com"})
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = repo.Create(ctx, &CreateLeadRequest{Name: "Sarah"})
	assert.ErrorIs(t, err, ErrMissingContact)

	lead, err := repo.Create(ctx, &CreateLeadRequest{Name: "Sarah", Phone: "+447700900123", Source: "website"})
	require.NoError(t, err)
	assert.Equal(t, "website", lead.Source)
	assert.False(t, lead.CreatedAt.IsZero())
}
