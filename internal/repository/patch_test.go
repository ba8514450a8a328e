package repository

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatchActivation(t *testing.T) {
	db, teardown := setupTestDB(t)
	defer teardown()

	repo := NewPatchRepository(db, zerolog.Nop())
	ctx := context.Background()

	active, err := repo.GetActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active, "no patch is active initially")

	require.NoError(t, repo.SetActive(ctx, "15.4"))
	active, err = repo.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "15.4", active)

	// Rotating deactivates the previous patch.
	require.NoError(t, repo.SetActive(ctx, "15.5"))
	active, err = repo.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "15.5", active)

	var activeCount int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM patches WHERE is_active = 1`).Scan(&activeCount))
	assert.Equal(t, 1, activeCount)
	assert.Equal(t, 2, countRows(t, db, "patches"))
}
