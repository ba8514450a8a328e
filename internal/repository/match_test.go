package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"rift-analytics/internal/domain"
)

func TestInsertMatchIdempotent(t *testing.T) {
	db, teardown := setupTestDB(t)
	defer teardown()

	repo := NewMatchRepository(db, zerolog.Nop())
	ctx := context.Background()
	match := testMatch(t, db, "NA1_123")

	result, err := repo.InsertMatch(ctx, match)
	require.NoError(t, err)
	assert.Equal(t, InsertResultInserted, result)
	assert.NotEmpty(t, match.ID)

	// Same external id again: a no-op result, never an error.
	second := testMatch(t, db, "NA1_123")
	result, err = repo.InsertMatch(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, InsertResultAlreadyExists, result)

	assert.Equal(t, 1, countRows(t, db, "matches"))
	assert.Equal(t, 10, countRows(t, db, "match_participants"))
	assert.Equal(t, 10, countRows(t, db, "match_summoners"))
}

func TestInsertMatchParallel(t *testing.T) {
	db, teardown := setupTestDB(t)
	defer teardown()

	repo := NewMatchRepository(db, zerolog.Nop())
	first := testMatch(t, db, "NA1_456")
	second := testMatch(t, db, "NA1_456")

	var g errgroup.Group
	results := make([]InsertResult, 2)
	for i, match := range []*domain.Match{first, second} {
		g.Go(func() error {
			result, err := repo.InsertMatch(context.Background(), match)
			results[i] = result
			return err
		})
	}
	require.NoError(t, g.Wait())

	// Exactly one attempt wins the insert; no duplicate-key error surfaces.
	assert.Equal(t, 1, countRows(t, db, "matches"))
	assert.Equal(t, 10, countRows(t, db, "match_participants"))
	assert.Contains(t, results, InsertResultInserted)
}

func TestInsertMatchPromotesFailureStub(t *testing.T) {
	db, teardown := setupTestDB(t)
	defer teardown()

	repo := NewMatchRepository(db, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, repo.MarkTemporaryFailure(ctx, "NA1_789", time.Now()))

	stub, err := repo.GetByMatchID(ctx, "NA1_789")
	require.NoError(t, err)
	require.NotNil(t, stub)
	assert.Equal(t, domain.FetchStatusTemporaryFailure, stub.Status)

	// A later successful fetch promotes the stub instead of reporting a
	// duplicate.
	match := testMatch(t, db, "NA1_789")
	result, err := repo.InsertMatch(ctx, match)
	require.NoError(t, err)
	assert.Equal(t, InsertResultInserted, result)

	promoted, err := repo.GetByMatchID(ctx, "NA1_789")
	require.NoError(t, err)
	assert.Equal(t, domain.FetchStatusFetched, promoted.Status)
	assert.Equal(t, "15.4", promoted.Patch)
	assert.Equal(t, 1, countRows(t, db, "matches"))
}

func TestMarkStatusNeverDowngradesTerminalStates(t *testing.T) {
	db, teardown := setupTestDB(t)
	defer teardown()

	repo := NewMatchRepository(db, zerolog.Nop())
	ctx := context.Background()

	match := testMatch(t, db, "NA1_111")
	_, err := repo.InsertMatch(ctx, match)
	require.NoError(t, err)

	// A fetched match stays fetched through both failure marks.
	require.NoError(t, repo.MarkTemporaryFailure(ctx, "NA1_111", time.Now()))
	require.NoError(t, repo.MarkPermanentlyUnfetchable(ctx, "NA1_111", time.Now()))

	got, err := repo.GetByMatchID(ctx, "NA1_111")
	require.NoError(t, err)
	assert.Equal(t, domain.FetchStatusFetched, got.Status)

	// Permanently unfetchable is terminal against temporary marks.
	require.NoError(t, repo.MarkPermanentlyUnfetchable(ctx, "NA1_222", time.Now()))
	require.NoError(t, repo.MarkTemporaryFailure(ctx, "NA1_222", time.Now()))

	got, err = repo.GetByMatchID(ctx, "NA1_222")
	require.NoError(t, err)
	assert.Equal(t, domain.FetchStatusPermanentlyUnfetchable, got.Status)
}

func TestListRetryableCapsAndFilters(t *testing.T) {
	db, teardown := setupTestDB(t)
	defer teardown()

	repo := NewMatchRepository(db, zerolog.Nop())
	ctx := context.Background()

	stale := time.Now().Add(-1 * time.Hour)
	for i := 0; i < 250; i++ {
		require.NoError(t, repo.MarkTemporaryFailure(ctx, fmt.Sprintf("NA1_old_%03d", i), stale.Add(time.Duration(i)*time.Second)))
	}
	// Attempted just now: inside the cooldown window.
	require.NoError(t, repo.MarkTemporaryFailure(ctx, "NA1_fresh", time.Now()))
	// Terminal: never retried.
	require.NoError(t, repo.MarkPermanentlyUnfetchable(ctx, "NA1_gone", time.Now().Add(-2*time.Hour)))

	cutoff := time.Now().Add(-10 * time.Minute)
	ids, err := repo.ListRetryable(ctx, cutoff, 100)
	require.NoError(t, err)
	assert.Len(t, ids, 100)
	assert.Equal(t, "NA1_old_000", ids[0], "oldest attempt comes first")
	assert.NotContains(t, ids, "NA1_fresh")
	assert.NotContains(t, ids, "NA1_gone")

	pending, err := repo.CountByStatus(ctx, domain.FetchStatusTemporaryFailure)
	require.NoError(t, err)
	assert.Equal(t, 251, pending)
}

func TestIsDuplicateMatchID(t *testing.T) {
	db, teardown := setupTestDB(t)
	defer teardown()

	now := time.Now()
	_, err := db.Exec(`
		INSERT INTO matches (id, match_id, status, created_at, updated_at)
		VALUES ('row1', 'NA1_dup', 'FETCHED', ?, ?)`, now, now)
	require.NoError(t, err)

	_, err = db.Exec(`
		INSERT INTO matches (id, match_id, status, created_at, updated_at)
		VALUES ('row2', 'NA1_dup', 'FETCHED', ?, ?)`, now, now)
	require.Error(t, err)
	assert.True(t, IsDuplicateMatchID(err))

	// A different uniqueness violation is not classified as a duplicate
	// match id.
	_, err = db.Exec(`
		INSERT INTO matches (id, match_id, status, created_at, updated_at)
		VALUES ('row1', 'NA1_other', 'FETCHED', ?, ?)`, now, now)
	require.Error(t, err)
	assert.False(t, IsDuplicateMatchID(err))

	assert.False(t, IsDuplicateMatchID(nil))
	assert.False(t, IsDuplicateMatchID(fmt.Errorf("plain error")))
}
