// Package devseed populates a development database with tickets in every
// lifecycle state so the HTTP API and admin tooling have data to work with.
package devseed

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opertusmundi/normalize/internal/data"
	"github.com/opertusmundi/normalize/internal/domain/model"
	"github.com/opertusmundi/normalize/internal/service"
)

// Services bundles the dependencies needed for development seeding.
type Services struct {
	DB      *sql.DB
	tickets *service.TicketService
}

// NewServices constructs the required services for seeding using the provided DB.
func NewServices(db *sql.DB) Services {
	ticketRepo := data.NewTicketRepo(db, data.RepoConfig{})
	ticketService := service.MustNewTicketService(service.TicketServiceOptions{
		Repo: ticketRepo,
	})

	return Services{
		DB:      db,
		tickets: ticketService,
	}
}

// seedState is the lifecycle state a seeded ticket is advanced to.
type seedState string

const (
	seedStatePending   seedState = "pending"
	seedStateRunning   seedState = "running"
	seedStateSucceeded seedState = "succeeded"
	seedStateFailed    seedState = "failed"
)

type seedTicket struct {
	Token   string
	Payload model.NormalizePayload
	State   seedState

	// Terminal fields, used when State is succeeded or failed.
	ExecutionTime float64
	Result        string
	Filesize      int64
	Comment       string
}

// Run executes the full development seeding workflow against the provided DB.
// Seeding is idempotent: tickets that already exist are left alone.
func Run(ctx context.Context, svcs Services, logger *slog.Logger) error {
	failures := 0
	for _, seed := range seedTickets() {
		created, err := createTicket(ctx, svcs.tickets, seed)
		if err != nil {
			if logger != nil {
				logger.ErrorContext(ctx, "failed to seed ticket", "ticket", seed.Token, "error", err)
			}
			failures++
			continue
		}
		if !created {
			if logger != nil {
				logger.InfoContext(ctx, "ticket already exists", "ticket", seed.Token)
			}
			continue
		}
		if err := advanceTicket(ctx, svcs.tickets, seed); err != nil {
			if logger != nil {
				logger.ErrorContext(ctx, "failed to advance seeded ticket",
					"ticket", seed.Token, "state", seed.State, "error", err)
			}
			failures++
			continue
		}
		if logger != nil {
			logger.InfoContext(ctx, "seeded ticket", "ticket", seed.Token, "state", seed.State)
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d seed errors; check logs", failures)
	}
	return nil
}

// createTicket creates a seed ticket. Returns false without error when the
// ticket already exists.
func createTicket(ctx context.Context, svc *service.TicketService, seed seedTicket) (bool, error) {
	raw, err := json.Marshal(seed.Payload)
	if err != nil {
		return false, fmt.Errorf("encode payload: %w", err)
	}

	_, err = svc.Create(ctx, &model.CreateTicketRequest{
		Token:   seed.Token,
		Payload: raw,
	})
	if err != nil {
		if errors.Is(err, data.ErrDuplicateTicket) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// advanceTicket walks a freshly created ticket to its target lifecycle state.
func advanceTicket(ctx context.Context, svc *service.TicketService, seed seedTicket) error {
	if seed.State == seedStatePending {
		return nil
	}

	if _, err := svc.MarkRunning(ctx, seed.Token); err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	if seed.State == seedStateRunning {
		return nil
	}

	req := &model.CompleteTicketRequest{
		Success: seed.State == seedStateSucceeded,
	}
	if seed.ExecutionTime > 0 {
		execTime := seed.ExecutionTime
		req.ExecutionTime = &execTime
	}
	if seed.Result != "" {
		result := seed.Result
		req.Result = &result
	}
	if seed.Filesize > 0 {
		filesize := seed.Filesize
		req.Filesize = &filesize
	}
	if seed.Comment != "" {
		comment := seed.Comment
		req.Comment = &comment
	}

	if _, err := svc.MarkCompleted(ctx, seed.Token, req); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

func seedTickets() []seedTicket {
	return []seedTicket{
		{
			Token: "dev-pending-csv",
			Payload: model.NormalizePayload{
				ResourceType: model.ResourceTypeCSV,
				SourcePath:   "/tmp/normalize/dev/contacts.csv",
				Filename:     "contacts.csv",
				Delimiter:    ";",
				Options: model.NormalizeOptions{
					PhoneColumns:         []string{"phone"},
					NormalizeColumnNames: true,
				},
			},
			State: seedStatePending,
		},
		{
			Token: "dev-running-csv",
			Payload: model.NormalizePayload{
				ResourceType: model.ResourceTypeCSV,
				SourcePath:   "/tmp/normalize/dev/parcels.csv",
				Filename:     "parcels.csv",
				Delimiter:    ",",
				CRS:          "EPSG:4326",
				Options: model.NormalizeOptions{
					DateColumns: []string{"registered_at"},
					CaseColumns: []string{"owner_name"},
				},
			},
			State: seedStateRunning,
		},
		{
			Token: "dev-completed-csv",
			Payload: model.NormalizePayload{
				ResourceType: model.ResourceTypeCSV,
				SourcePath:   "/tmp/normalize/dev/addresses.csv",
				Filename:     "addresses.csv",
				Delimiter:    ",",
				Options: model.NormalizeOptions{
					SpecialCharacterColumns: []string{"street"},
					TransliterationColumns:  []string{"street", "city"},
					TransliterationLangs:    []string{"el"},
				},
			},
			State:         seedStateSucceeded,
			ExecutionTime: 2.41,
			Result:        "/var/lib/normalize/output/dev-completed-csv/addresses.csv",
			Filesize:      48213,
		},
		{
			Token: "dev-failed-shp",
			Payload: model.NormalizePayload{
				ResourceType: model.ResourceTypeSHP,
				SourcePath:   "/tmp/normalize/dev/boundaries.zip",
				Filename:     "boundaries.zip",
				CRS:          "EPSG:2100",
			},
			State:         seedStateFailed,
			ExecutionTime: 0.12,
			Comment:       "shapefile archives are not supported yet",
		},
	}
}
