package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/opertusmundi/normalize/internal/core"
	"github.com/opertusmundi/normalize/internal/domain/model"
	"github.com/opertusmundi/normalize/internal/testutil"
)

func testPayload() json.RawMessage {
	return json.RawMessage(`{"resource_type":"csv","source_path":"/tmp/in.csv","filename":"in.csv"}`)
}

func TestTicketRepo_Create(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	tests := []struct {
		name    string
		req     *model.CreateTicketRequest
		wantErr bool
		errMsg  string
	}{
		{
			name: "generated token",
			req:  &model.CreateTicketRequest{Payload: testPayload()},
		},
		{
			name: "explicit token",
			req: &model.CreateTicketRequest{
				Token:   "11f5ad28-6a2b-41aa-8e32-19accba89dcb",
				Payload: testPayload(),
			},
		},
		{
			name:    "missing payload",
			req:     &model.CreateTicketRequest{},
			wantErr: true,
			errMsg:  "payload is required",
		},
		{
			name:    "malformed payload",
			req:     &model.CreateTicketRequest{Payload: json.RawMessage(`{oops`)},
			wantErr: true,
			errMsg:  "payload must be valid JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.WithAutoDB(t, func(db *sql.DB) {
				repo := NewTicketRepo(db, RepoConfig{})

				ticket, err := repo.Create(context.Background(), tt.req)

				if tt.wantErr {
					require.Error(t, err)
					assert.Contains(t, err.Error(), tt.errMsg)
					assert.Nil(t, ticket)
					return
				}

				require.NoError(t, err)
				require.NotNil(t, ticket)

				assert.NotZero(t, ticket.ID)
				assert.Equal(t, model.TicketStatusPending, ticket.Status)
				assert.Nil(t, ticket.Success)
				assert.Nil(t, ticket.CompletedTime)
				assert.Nil(t, ticket.ExecutionTime)
				assert.NotZero(t, ticket.RequestedTime)
				assert.JSONEq(t, string(testPayload()), string(ticket.Payload))

				if tt.req.Token != "" {
					assert.Equal(t, tt.req.Token, ticket.Token)
				} else {
					_, parseErr := uuid.Parse(ticket.Token)
					assert.NoError(t, parseErr, "generated token should be a UUID")
				}
			})
		})
	}
}

func TestTicketRepo_Create_DuplicateToken(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewTicketRepo(db, RepoConfig{})
		ctx := context.Background()

		req := &model.CreateTicketRequest{
			Token:   uuid.NewString(),
			Payload: testPayload(),
		}

		_, err := repo.Create(ctx, req)
		require.NoError(t, err)

		_, err = repo.Create(ctx, req)
		require.ErrorIs(t, err, ErrDuplicateTicket)
	})
}

func TestTicketRepo_Create_GeneratedTokensNeverCollide(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewTicketRepo(db, RepoConfig{})
		ctx := context.Background()

		seen := make(map[string]bool)
		for range 25 {
			ticket, err := repo.Create(ctx, &model.CreateTicketRequest{Payload: testPayload()})
			require.NoError(t, err)
			assert.False(t, seen[ticket.Token], "token %s issued twice", ticket.Token)
			seen[ticket.Token] = true
		}
	})
}

func TestTicketRepo_GetByToken(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewTicketRepo(db, RepoConfig{})
		ctx := context.Background()

		created, err := repo.Create(ctx, &model.CreateTicketRequest{Payload: testPayload()})
		require.NoError(t, err)

		got, err := repo.GetByToken(ctx, created.Token)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, created.Token, got.Token)
		assert.Equal(t, model.TicketStatusPending, got.Status)

		_, err = repo.GetByToken(ctx, "0b2c8f86-0000-0000-0000-000000000000")
		require.ErrorIs(t, err, ErrUnknownTicket)
	})
}

func TestTicketRepo_MarkRunning(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewTicketRepo(db, RepoConfig{})
		ctx := context.Background()

		created, err := repo.Create(ctx, &model.CreateTicketRequest{Payload: testPayload()})
		require.NoError(t, err)

		running, err := repo.MarkRunning(ctx, created.Token)
		require.NoError(t, err)
		assert.Equal(t, model.TicketStatusRunning, running.Status)
		require.NotNil(t, running.StartedTime)
		assert.Nil(t, running.Success)

		// Running is not a valid source state for MarkRunning.
		_, err = repo.MarkRunning(ctx, created.Token)
		require.ErrorIs(t, err, ErrInvalidTransition)

		// Unknown tokens are reported distinctly.
		_, err = repo.MarkRunning(ctx, uuid.NewString())
		require.ErrorIs(t, err, ErrUnknownTicket)
	})
}

func TestTicketRepo_MarkCompleted(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewTicketRepo(db, RepoConfig{})
		ctx := context.Background()

		created, err := repo.Create(ctx, &model.CreateTicketRequest{Payload: testPayload()})
		require.NoError(t, err)
		_, err = repo.MarkRunning(ctx, created.Token)
		require.NoError(t, err)

		done, err := repo.MarkCompleted(ctx, created.Token, &model.CompleteTicketRequest{
			Success:       true,
			ExecutionTime: testutil.Float64Ptr(3.25),
			Result:        testutil.StringPtr("/var/output/250601/" + created.Token + "/out.gpkg"),
			Filesize:      testutil.Int64Ptr(204800),
		})
		require.NoError(t, err)

		assert.Equal(t, model.TicketStatusCompleted, done.Status)
		require.NotNil(t, done.Success)
		assert.True(t, *done.Success)
		require.NotNil(t, done.ExecutionTime)
		assert.InDelta(t, 3.25, *done.ExecutionTime, 1e-9)
		require.NotNil(t, done.Filesize)
		assert.Equal(t, int64(204800), *done.Filesize)
		require.NotNil(t, done.CompletedTime)
	})
}

func TestTicketRepo_MarkCompleted_DerivesExecutionTime(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		tp := NewFixedTimeProvider(testutil.TestTime())
		repo := NewTicketRepo(db, RepoConfig{TimeProvider: tp})
		ctx := context.Background()

		created, err := repo.Create(ctx, &model.CreateTicketRequest{Payload: testPayload()})
		require.NoError(t, err)
		_, err = repo.MarkRunning(ctx, created.Token)
		require.NoError(t, err)

		tp.AddTime(42 * time.Second)

		done, err := repo.MarkCompleted(ctx, created.Token, &model.CompleteTicketRequest{Success: true})
		require.NoError(t, err)
		require.NotNil(t, done.ExecutionTime)
		assert.InDelta(t, 42.0, *done.ExecutionTime, 0.5)
	})
}

func TestTicketRepo_MarkCompleted_TransitionErrors(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewTicketRepo(db, RepoConfig{})
		ctx := context.Background()

		pending, err := repo.Create(ctx, &model.CreateTicketRequest{Payload: testPayload()})
		require.NoError(t, err)

		// Completing a pending ticket skips a state and is rejected.
		_, err = repo.MarkCompleted(ctx, pending.Token, &model.CompleteTicketRequest{Success: true})
		require.ErrorIs(t, err, ErrInvalidTransition)

		_, err = repo.MarkCompleted(ctx, uuid.NewString(), &model.CompleteTicketRequest{Success: true})
		require.ErrorIs(t, err, ErrUnknownTicket)
	})
}

func TestTicketRepo_TerminalFieldsAreWriteOnce(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewTicketRepo(db, RepoConfig{})
		ctx := context.Background()

		created, err := repo.Create(ctx, &model.CreateTicketRequest{Payload: testPayload()})
		require.NoError(t, err)
		_, err = repo.MarkRunning(ctx, created.Token)
		require.NoError(t, err)

		first, err := repo.MarkCompleted(ctx, created.Token, &model.CompleteTicketRequest{
			Success:  true,
			Result:   testutil.StringPtr("/var/output/a"),
			Filesize: testutil.Int64Ptr(100),
		})
		require.NoError(t, err)

		// A second completion attempt must fail and leave the record untouched.
		_, err = repo.MarkCompleted(ctx, created.Token, &model.CompleteTicketRequest{
			Success: false,
			Comment: testutil.StringPtr("should never be written"),
		})
		require.ErrorIs(t, err, ErrInvalidTransition)

		got, err := repo.GetByToken(ctx, created.Token)
		require.NoError(t, err)
		require.NotNil(t, got.Success)
		assert.True(t, *got.Success)
		assert.Equal(t, *first.Result, *got.Result)
		assert.Equal(t, *first.Filesize, *got.Filesize)
		assert.Nil(t, got.Comment)
		assert.Equal(t, first.CompletedTime.Unix(), got.CompletedTime.Unix())
	})
}

func TestTicketRepo_ClaimNext(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		tp := NewFixedTimeProvider(testutil.TestTime())
		repo := NewTicketRepo(db, RepoConfig{TimeProvider: tp})
		ctx := context.Background()

		_, err := repo.ClaimNext(ctx)
		require.ErrorIs(t, err, model.ErrNoTicketsAvailable)

		first, err := repo.Create(ctx, &model.CreateTicketRequest{Payload: testPayload()})
		require.NoError(t, err)
		tp.AddTime(time.Second)
		second, err := repo.Create(ctx, &model.CreateTicketRequest{Payload: testPayload()})
		require.NoError(t, err)

		claimed, err := repo.ClaimNext(ctx)
		require.NoError(t, err)
		assert.Equal(t, first.Token, claimed.Token, "oldest pending ticket is claimed first")
		assert.Equal(t, model.TicketStatusRunning, claimed.Status)
		require.NotNil(t, claimed.StartedTime)

		claimed2, err := repo.ClaimNext(ctx)
		require.NoError(t, err)
		assert.Equal(t, second.Token, claimed2.Token)

		_, err = repo.ClaimNext(ctx)
		require.ErrorIs(t, err, model.ErrNoTicketsAvailable)
	})
}

func TestTicketRepo_ClaimNext_ConcurrentClaimsAreDisjoint(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewTicketRepo(db, RepoConfig{})
		ctx := context.Background()

		const n = 8
		for range n {
			_, err := repo.Create(ctx, &model.CreateTicketRequest{Payload: testPayload()})
			require.NoError(t, err)
		}

		var g errgroup.Group
		claims := make(chan string, n)
		for range n {
			g.Go(func() error {
				ticket, err := repo.ClaimNext(ctx)
				if err != nil {
					return err
				}
				claims <- ticket.Token
				return nil
			})
		}
		require.NoError(t, g.Wait())
		close(claims)

		seen := make(map[string]bool)
		for token := range claims {
			assert.False(t, seen[token], "ticket %s claimed twice", token)
			seen[token] = true
		}
		assert.Len(t, seen, n)
	})
}

func TestTicketRepo_List(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		tp := NewFixedTimeProvider(testutil.TestTime())
		repo := NewTicketRepo(db, RepoConfig{TimeProvider: tp})
		ctx := context.Background()

		var tokens []string
		for range 5 {
			ticket, err := repo.Create(ctx, &model.CreateTicketRequest{Payload: testPayload()})
			require.NoError(t, err)
			tokens = append(tokens, ticket.Token)
			tp.AddTime(time.Minute)
		}

		// Move the third ticket along so the status filter has something to find.
		_, err := repo.MarkRunning(ctx, tokens[2])
		require.NoError(t, err)

		t.Run("ordered by requested_time ascending", func(t *testing.T) {
			all, listErr := repo.List(ctx, model.TicketListOptions{})
			require.NoError(t, listErr)
			require.Len(t, all, 5)
			for i, ticket := range all {
				assert.Equal(t, tokens[i], ticket.Token)
			}
			for i := 1; i < len(all); i++ {
				assert.False(t, all[i].RequestedTime.Before(all[i-1].RequestedTime))
			}
		})

		t.Run("pagination is restartable", func(t *testing.T) {
			page1, listErr := repo.List(ctx, model.TicketListOptions{Limit: 2})
			require.NoError(t, listErr)
			page2, listErr := repo.List(ctx, model.TicketListOptions{Limit: 2, Offset: 2})
			require.NoError(t, listErr)
			page3, listErr := repo.List(ctx, model.TicketListOptions{Limit: 2, Offset: 4})
			require.NoError(t, listErr)

			var walked []string
			for _, page := range [][]*model.Ticket{page1, page2, page3} {
				for _, ticket := range page {
					walked = append(walked, ticket.Token)
				}
			}
			assert.Equal(t, tokens, walked)
		})

		t.Run("status filter", func(t *testing.T) {
			status := model.TicketStatusRunning
			running, listErr := repo.List(ctx, model.TicketListOptions{Status: &status})
			require.NoError(t, listErr)
			require.Len(t, running, 1)
			assert.Equal(t, tokens[2], running[0].Token)
		})

		t.Run("offset past the end", func(t *testing.T) {
			empty, listErr := repo.List(ctx, model.TicketListOptions{Offset: 50})
			require.NoError(t, listErr)
			assert.Empty(t, empty)
		})
	})
}

func TestTicketRepo_Stats(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewTicketRepo(db, RepoConfig{})
		ctx := context.Background()

		mk := func() *model.Ticket {
			ticket, err := repo.Create(ctx, &model.CreateTicketRequest{Payload: testPayload()})
			require.NoError(t, err)
			return ticket
		}

		mk()
		running := mk()
		succeeded := mk()
		failed := mk()

		_, err := repo.MarkRunning(ctx, running.Token)
		require.NoError(t, err)

		for _, tc := range []struct {
			ticket  *model.Ticket
			success bool
		}{
			{succeeded, true},
			{failed, false},
		} {
			_, err = repo.MarkRunning(ctx, tc.ticket.Token)
			require.NoError(t, err)
			req := &model.CompleteTicketRequest{Success: tc.success}
			if !tc.success {
				req.Comment = testutil.StringPtr("gdal exited with status 1")
			}
			_, err = repo.MarkCompleted(ctx, tc.ticket.Token, req)
			require.NoError(t, err)
		}

		stats, err := repo.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Pending)
		assert.Equal(t, 1, stats.Running)
		assert.Equal(t, 2, stats.Completed)
		assert.Equal(t, 1, stats.Succeeded)
		assert.Equal(t, 1, stats.Failed)
	})
}

func TestTicketRepo_WaitForNotification(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewTicketRepo(db, RepoConfig{})

		notified := make(chan error, 1)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			notified <- repo.WaitForNotification(ctx)
		}()

		// Give the listener a moment to attach before creating the ticket.
		time.Sleep(250 * time.Millisecond)

		_, err := repo.Create(context.Background(), &model.CreateTicketRequest{Payload: testPayload()})
		require.NoError(t, err)

		select {
		case waitErr := <-notified:
			require.NoError(t, waitErr)
		case <-time.After(10 * time.Second):
			t.Fatal("expected notification after ticket creation")
		}
	})
}

var _ core.TicketRepository = (*TicketRepo)(nil)
var _ core.ReaperRepository = (*TicketRepo)(nil)
var _ core.CacheRepository = (*RedisCacheRepo)(nil)
