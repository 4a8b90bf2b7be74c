// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package verification_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/identity-service/internal/apperror"
	"codeberg.org/oliverandrich/identity-service/internal/models"
	"codeberg.org/oliverandrich/identity-service/internal/repository"
	"codeberg.org/oliverandrich/identity-service/internal/services/verification"
	"codeberg.org/oliverandrich/identity-service/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setup(t *testing.T) (*verification.Service, *repository.Repository, *clock, *models.User) {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	clk := &clock{now: time.Now()}
	svc := verification.NewService(repo, 0, 0).WithClock(clk.Now)
	return svc, repo, clk, testutil.NewTestUser(t, repo, "bob")
}

func TestIssue_DefaultTTLs(t *testing.T) {
	svc, _, clk, user := setup(t)
	ctx := context.Background()

	verify, err := svc.Issue(ctx, user.ID, models.TokenEmailVerify)
	require.NoError(t, err)
	assert.WithinDuration(t, clk.Now().Add(15*time.Minute), verify.ExpiresAt, time.Second)

	reset, err := svc.Issue(ctx, user.ID, models.TokenPasswordReset)
	require.NoError(t, err)
	assert.WithinDuration(t, clk.Now().Add(time.Hour), reset.ExpiresAt, time.Second)

	assert.NotEqual(t, verify.Token, reset.Token)
}

func TestIssue_InvalidatesPrevious(t *testing.T) {
	svc, _, _, user := setup(t)
	ctx := context.Background()

	first, err := svc.Issue(ctx, user.ID, models.TokenEmailVerify)
	require.NoError(t, err)
	second, err := svc.Issue(ctx, user.ID, models.TokenEmailVerify)
	require.NoError(t, err)

	_, err = svc.Consume(ctx, first.Token, models.TokenEmailVerify)
	assert.ErrorIs(t, err, apperror.ErrTokenNotFound)

	userID, err := svc.Consume(ctx, second.Token, models.TokenEmailVerify)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)
}

func TestIssue_TypesIndependent(t *testing.T) {
	svc, _, _, user := setup(t)
	ctx := context.Background()

	verify, err := svc.Issue(ctx, user.ID, models.TokenEmailVerify)
	require.NoError(t, err)
	_, err = svc.Issue(ctx, user.ID, models.TokenPasswordReset)
	require.NoError(t, err)

	_, err = svc.Consume(ctx, verify.Token, models.TokenEmailVerify)
	assert.NoError(t, err)
}

func TestIssue_UnknownType(t *testing.T) {
	svc, _, _, user := setup(t)

	_, err := svc.Issue(context.Background(), user.ID, models.TokenType("magic_link"))
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestConsume_Twice(t *testing.T) {
	svc, _, _, user := setup(t)
	ctx := context.Background()
	issued, err := svc.Issue(ctx, user.ID, models.TokenPasswordReset)
	require.NoError(t, err)

	userID, err := svc.Consume(ctx, issued.Token, models.TokenPasswordReset)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)

	_, err = svc.Consume(ctx, issued.Token, models.TokenPasswordReset)
	assert.ErrorIs(t, err, apperror.ErrTokenNotFound)
}

func TestConsume_Concurrent(t *testing.T) {
	svc, _, _, user := setup(t)
	ctx := context.Background()
	issued, err := svc.Issue(ctx, user.ID, models.TokenEmailVerify)
	require.NoError(t, err)

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Consume(ctx, issued.Token, models.TokenEmailVerify)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var successes int
	for err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.ErrorIs(t, err, apperror.ErrTokenNotFound)
	}
	assert.Equal(t, 1, successes)
}

func TestConsume_Expired(t *testing.T) {
	svc, _, clk, user := setup(t)
	ctx := context.Background()
	issued, err := svc.Issue(ctx, user.ID, models.TokenEmailVerify)
	require.NoError(t, err)

	clk.Advance(16 * time.Minute)

	_, err = svc.Consume(ctx, issued.Token, models.TokenEmailVerify)
	assert.ErrorIs(t, err, apperror.ErrTokenExpired)

	// expired tokens are deleted on lookup
	_, err = svc.Consume(ctx, issued.Token, models.TokenEmailVerify)
	assert.ErrorIs(t, err, apperror.ErrTokenNotFound)
}

func TestConsume_TypeMismatch(t *testing.T) {
	svc, _, _, user := setup(t)
	ctx := context.Background()
	issued, err := svc.Issue(ctx, user.ID, models.TokenEmailVerify)
	require.NoError(t, err)

	_, err = svc.Consume(ctx, issued.Token, models.TokenPasswordReset)
	assert.ErrorIs(t, err, apperror.ErrTokenTypeMismatch)

	_, err = svc.Consume(ctx, issued.Token, models.TokenEmailVerify)
	assert.ErrorIs(t, err, apperror.ErrTokenNotFound)
}

func TestConsume_UnknownAndEmpty(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()

	_, err := svc.Consume(ctx, "", models.TokenEmailVerify)
	assert.ErrorIs(t, err, apperror.ErrTokenNotFound)

	_, err = svc.Consume(ctx, "deadbeef", models.TokenEmailVerify)
	assert.ErrorIs(t, err, apperror.ErrTokenNotFound)
}

func TestSweep(t *testing.T) {
	svc, repo, clk, user := setup(t)
	ctx := context.Background()
	other := testutil.NewTestUser(t, repo, "carol")

	_, err := svc.Issue(ctx, user.ID, models.TokenEmailVerify)
	require.NoError(t, err)
	_, err = svc.Issue(ctx, other.ID, models.TokenPasswordReset)
	require.NoError(t, err)

	clk.Advance(30 * time.Minute)

	n, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.GetVerificationToken(ctx, other.ID, models.TokenPasswordReset)
	assert.NoError(t, err)
}
