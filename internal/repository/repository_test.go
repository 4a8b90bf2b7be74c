// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"testing"

	"codeberg.org/oliverandrich/identity-service/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	assert.NotNil(t, repo)
	assert.NoError(t, repo.Ping(context.Background()))
}

func TestPing_ClosedDatabase(t *testing.T) {
	db, repo := testutil.NewTestDB(t)
	require.NoError(t, db.Close())

	assert.Error(t, repo.Ping(context.Background()))
}
