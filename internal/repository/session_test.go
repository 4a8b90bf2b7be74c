// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/identity-service/internal/models"
	"codeberg.org/oliverandrich/identity-service/internal/repository"
	"codeberg.org/oliverandrich/identity-service/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(userID, hash string, ttl time.Duration) *models.Session {
	now := time.Now().UTC()
	return &models.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: hash,
		UserAgent: "test-agent",
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

func TestRotateSession(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "bob")
	require.NoError(t, repo.CreateSession(ctx, newSession(user.ID, "r1", time.Hour)))

	next := newSession("", "r2", time.Hour)
	next.UserAgent = ""
	old, err := repo.RotateSession(ctx, "r1", time.Now(), next)
	require.NoError(t, err)
	assert.Equal(t, user.ID, old.UserID)
	assert.Equal(t, user.ID, next.UserID)
	assert.Equal(t, "test-agent", next.UserAgent)

	_, err = repo.RotateSession(ctx, "r1", time.Now(), newSession("", "r3", time.Hour))
	assert.ErrorIs(t, err, repository.ErrNotFound)

	sessions, err := repo.ListUserSessions(ctx, user.ID, time.Now())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "r2", sessions[0].TokenHash)
}

func TestRotateSession_Expired(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "bob")
	require.NoError(t, repo.CreateSession(ctx, newSession(user.ID, "old", -time.Minute)))

	_, err := repo.RotateSession(ctx, "old", time.Now(), newSession("", "new", time.Hour))
	assert.ErrorIs(t, err, repository.ErrExpired)

	// the expired row is gone and no successor was created
	_, err = repo.RotateSession(ctx, "old", time.Now(), newSession("", "new2", time.Hour))
	assert.ErrorIs(t, err, repository.ErrNotFound)
	count, err := repo.CountActiveSessions(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRotateSession_Concurrent(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "bob")
	require.NoError(t, repo.CreateSession(ctx, newSession(user.ID, "stale", time.Hour)))

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.RotateSession(ctx, "stale", time.Now(), newSession("", uuid.NewString(), time.Hour))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes int
	for err := range results {
		if err == nil {
			successes++
		}
	}
	assert.Equal(t, 1, successes)

	sessions, err := repo.ListUserSessions(ctx, user.ID, time.Now())
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestDeleteSessionByHash_Idempotent(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "bob")
	require.NoError(t, repo.CreateSession(ctx, newSession(user.ID, "s", time.Hour)))

	deleted, err := repo.DeleteSessionByHash(ctx, "s")
	require.NoError(t, err)
	require.NotNil(t, deleted)
	assert.Equal(t, user.ID, deleted.UserID)

	deleted, err = repo.DeleteSessionByHash(ctx, "s")
	require.NoError(t, err)
	assert.Nil(t, deleted)
}

func TestDeleteUserSessions(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	alice := testutil.NewTestUser(t, repo, "alice")
	bob := testutil.NewTestUser(t, repo, "bob")
	for _, h := range []string{"a1", "a2", "a3"} {
		require.NoError(t, repo.CreateSession(ctx, newSession(alice.ID, h, time.Hour)))
	}
	require.NoError(t, repo.CreateSession(ctx, newSession(bob.ID, "b1", time.Hour)))

	n, err := repo.DeleteUserSessions(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	count, err := repo.CountActiveSessions(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestDeleteExpiredSessions(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "bob")
	require.NoError(t, repo.CreateSession(ctx, newSession(user.ID, "old", -time.Hour)))
	require.NoError(t, repo.CreateSession(ctx, newSession(user.ID, "live", time.Hour)))

	n, err := repo.DeleteExpiredSessions(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	sessions, err := repo.ListUserSessions(ctx, user.ID, time.Now())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "live", sessions[0].TokenHash)
}
