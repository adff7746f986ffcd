package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opertusmundi/normalize/internal/core"
	"github.com/opertusmundi/normalize/internal/domain/model"
	"github.com/opertusmundi/normalize/internal/testutil"
)

func TestTicketRepo_FailStuckRunningTickets(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		tp := NewFixedTimeProvider(testutil.TestTime())
		repo := NewTicketRepo(db, RepoConfig{TimeProvider: tp})
		ctx := context.Background()

		stuck, err := repo.Create(ctx, &model.CreateTicketRequest{Payload: testPayload()})
		require.NoError(t, err)
		_, err = repo.MarkRunning(ctx, stuck.Token)
		require.NoError(t, err)

		// A ticket that started recently must survive the sweep.
		tp.AddTime(2 * time.Hour)
		fresh, err := repo.Create(ctx, &model.CreateTicketRequest{Payload: testPayload()})
		require.NoError(t, err)
		_, err = repo.MarkRunning(ctx, fresh.Token)
		require.NoError(t, err)

		failed, err := repo.FailStuckRunningTickets(ctx, core.FailStuckRunningParams{
			MaxAge:    time.Hour,
			BatchSize: 100,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), failed)

		got, err := repo.GetByToken(ctx, stuck.Token)
		require.NoError(t, err)
		assert.Equal(t, model.TicketStatusCompleted, got.Status)
		require.NotNil(t, got.Success)
		assert.False(t, *got.Success)
		require.NotNil(t, got.Comment)
		assert.Equal(t, "Processing timed out", *got.Comment)
		require.NotNil(t, got.ExecutionTime)

		still, err := repo.GetByToken(ctx, fresh.Token)
		require.NoError(t, err)
		assert.Equal(t, model.TicketStatusRunning, still.Status)
	})
}

func TestTicketRepo_FailStuckRunningTickets_ParamValidation(t *testing.T) {
	repo := NewTicketRepo(nil, RepoConfig{})
	ctx := context.Background()

	_, err := repo.FailStuckRunningTickets(ctx, core.FailStuckRunningParams{MaxAge: time.Hour})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch size")

	_, err = repo.FailStuckRunningTickets(ctx, core.FailStuckRunningParams{BatchSize: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max age")
}

func TestTicketRepo_DeleteOldCompletedTickets(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		tp := NewFixedTimeProvider(testutil.TestTime())
		repo := NewTicketRepo(db, RepoConfig{TimeProvider: tp})
		ctx := context.Background()

		complete := func() *model.Ticket {
			ticket, err := repo.Create(ctx, &model.CreateTicketRequest{Payload: testPayload()})
			require.NoError(t, err)
			_, err = repo.MarkRunning(ctx, ticket.Token)
			require.NoError(t, err)
			_, err = repo.MarkCompleted(ctx, ticket.Token, &model.CompleteTicketRequest{Success: true})
			require.NoError(t, err)
			return ticket
		}

		old := complete()
		tp.AddTime(30 * 24 * time.Hour)
		recent := complete()

		// A pending ticket is never subject to retention.
		pending, err := repo.Create(ctx, &model.CreateTicketRequest{Payload: testPayload()})
		require.NoError(t, err)

		deleted, err := repo.DeleteOldCompletedTickets(ctx, core.DeleteOldCompletedParams{
			MaxAge:    7 * 24 * time.Hour,
			BatchSize: 100,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		_, err = repo.GetByToken(ctx, old.Token)
		require.ErrorIs(t, err, ErrUnknownTicket)

		_, err = repo.GetByToken(ctx, recent.Token)
		require.NoError(t, err)
		_, err = repo.GetByToken(ctx, pending.Token)
		require.NoError(t, err)
	})
}

func TestTicketRepo_DeleteOldCompletedTickets_BatchLimit(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		tp := NewFixedTimeProvider(testutil.TestTime())
		repo := NewTicketRepo(db, RepoConfig{TimeProvider: tp})
		ctx := context.Background()

		for range 5 {
			ticket, err := repo.Create(ctx, &model.CreateTicketRequest{Payload: testPayload()})
			require.NoError(t, err)
			_, err = repo.MarkRunning(ctx, ticket.Token)
			require.NoError(t, err)
			_, err = repo.MarkCompleted(ctx, ticket.Token, &model.CompleteTicketRequest{Success: true})
			require.NoError(t, err)
		}
		tp.AddTime(48 * time.Hour)

		deleted, err := repo.DeleteOldCompletedTickets(ctx, core.DeleteOldCompletedParams{
			MaxAge:    time.Hour,
			BatchSize: 2,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)

		stats, err := repo.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Completed)
	})
}
