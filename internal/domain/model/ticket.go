// Package model defines the core data types and structures used throughout the normalize service.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TicketStatus represents the lifecycle state of a normalization ticket.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type TicketStatus string

// ResourceType represents the kind of geospatial resource a ticket normalizes.
type ResourceType string

const (
	// TicketStatusPending indicates a ticket is waiting to be processed.
	TicketStatusPending TicketStatus = "pending"
	// TicketStatusRunning indicates a ticket is currently being processed.
	TicketStatusRunning TicketStatus = "running"
	// TicketStatusCompleted indicates processing has finished, in success or failure.
	TicketStatusCompleted TicketStatus = "completed"

	// ResourceTypeCSV represents a delimited tabular dataset.
	ResourceTypeCSV ResourceType = "csv"
	// ResourceTypeSHP represents a (possibly compressed) shapefile dataset.
	ResourceTypeSHP ResourceType = "shp"
)

// ErrNoTicketsAvailable is returned when no pending tickets are available to claim.
var ErrNoTicketsAvailable = errors.New("no tickets available")

// UnmarshalText implements encoding.TextUnmarshaler for TicketStatus to allow
// query-string and env parsing.
func (s *TicketStatus) UnmarshalText(text []byte) error {
	v := TicketStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if v.Valid() {
		*s = v
		return nil
	}
	return fmt.Errorf("invalid TicketStatus: %q", string(text))
}

// Valid returns true if the TicketStatus is valid.
func (s TicketStatus) Valid() bool {
	return s == TicketStatusPending || s == TicketStatusRunning || s == TicketStatusCompleted
}

// Terminal returns true for statuses that admit no further transition.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusCompleted
}

// Valid returns true if the ResourceType is valid.
func (t ResourceType) Valid() bool {
	return t == ResourceTypeCSV || t == ResourceTypeSHP
}

// Ticket represents one normalization request tracked through its lifecycle.
// Terminal fields (Success, ExecutionTime, Result, Filesize, Comment, CompletedTime)
// are written exactly once, by the completion update, and never change afterwards.
type Ticket struct {
	ID            int64           `json:"id"                       db:"id"`
	Token         string          `json:"ticket"                   db:"ticket"`
	Status        TicketStatus    `json:"status"                   db:"status"`
	Success       *bool           `json:"success"                  db:"success"`
	Payload       json.RawMessage `json:"payload,omitempty"        db:"payload"`
	RequestedTime time.Time       `json:"requested_time"           db:"requested_time"`
	StartedTime   *time.Time      `json:"started_time,omitempty"   db:"started_time"`
	CompletedTime *time.Time      `json:"completed_time,omitempty" db:"completed_time"`
	ExecutionTime *float64        `json:"execution_time,omitempty" db:"execution_time"`
	Result        *string         `json:"result,omitempty"         db:"result"`
	Filesize      *int64          `json:"filesize,omitempty"       db:"filesize"`
	Comment       *string         `json:"comment,omitempty"        db:"comment"`
}

// CreateTicketRequest represents a request to open a new ticket.
// Token is optional; when empty the repository generates a fresh UUIDv4.
type CreateTicketRequest struct {
	Token   string          `json:"ticket,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Validate validates the CreateTicketRequest fields.
func (r *CreateTicketRequest) Validate() error {
	if len(r.Payload) == 0 {
		return errors.New("payload is required")
	}
	if !json.Valid(r.Payload) {
		return errors.New("payload must be valid JSON")
	}
	return nil
}

// CompleteTicketRequest carries the terminal fields recorded when a running
// ticket finishes. ExecutionTime is in seconds.
type CompleteTicketRequest struct {
	Success       bool     `json:"success"`
	ExecutionTime *float64 `json:"execution_time,omitempty"`
	Result        *string  `json:"result,omitempty"`
	Filesize      *int64   `json:"filesize,omitempty"`
	Comment       *string  `json:"comment,omitempty"`
}

// Validate validates the CompleteTicketRequest fields.
func (r *CompleteTicketRequest) Validate() error {
	if r.ExecutionTime != nil && *r.ExecutionTime < 0 {
		return errors.New("execution time must be >= 0")
	}
	if r.Filesize != nil && *r.Filesize < 0 {
		return errors.New("filesize must be >= 0")
	}
	if !r.Success && (r.Comment == nil || *r.Comment == "") {
		return errors.New("comment is required for failed tickets")
	}
	return nil
}

// NormalizePayload is the job document stored on a ticket: where the uploaded
// resource was staged and how it should be normalized.
type NormalizePayload struct {
	ResourceType ResourceType     `json:"resource_type"`
	SourcePath   string           `json:"source_path"`
	Filename     string           `json:"filename"`
	Delimiter    string           `json:"csv_delimiter,omitempty"`
	CRS          string           `json:"crs,omitempty"`
	Options      NormalizeOptions `json:"options"`
}

// NormalizeOptions selects which normalizations to apply and to which columns.
// Column-list options name the columns to transform; empty lists are no-ops.
type NormalizeOptions struct {
	DateColumns             []string `json:"date_normalization,omitempty"`
	PhoneColumns            []string `json:"phone_normalization,omitempty"`
	SpecialCharacterColumns []string `json:"special_character_normalization,omitempty"`
	AlphabeticalColumns     []string `json:"alphabetical_normalization,omitempty"`
	CaseColumns             []string `json:"case_normalization,omitempty"`
	TransliterationColumns  []string `json:"transliteration,omitempty"`
	TransliterationLangs    []string `json:"transliteration_langs,omitempty"`
	ValueCleaningColumns    []string `json:"value_cleaning,omitempty"`
	NormalizeColumnNames    bool     `json:"column_name_normalization,omitempty"`
}

// Empty reports whether no normalization was requested at all.
func (o NormalizeOptions) Empty() bool {
	return len(o.DateColumns) == 0 &&
		len(o.PhoneColumns) == 0 &&
		len(o.SpecialCharacterColumns) == 0 &&
		len(o.AlphabeticalColumns) == 0 &&
		len(o.CaseColumns) == 0 &&
		len(o.TransliterationColumns) == 0 &&
		len(o.ValueCleaningColumns) == 0 &&
		!o.NormalizeColumnNames
}

// Validate validates the NormalizePayload fields.
func (p *NormalizePayload) Validate() error {
	if !p.ResourceType.Valid() {
		return errors.New("invalid resource type")
	}
	if p.SourcePath == "" {
		return errors.New("source path is required")
	}
	if p.Filename == "" {
		return errors.New("filename is required")
	}
	if len(p.Options.TransliterationColumns) > 0 && len(p.Options.TransliterationLangs) == 0 {
		return errors.New("transliteration requires source language(s)")
	}
	return nil
}

// ParseNormalizePayload decodes the job document stored on a ticket.
// Returns nil when the ticket carries no payload.
func ParseNormalizePayload(raw json.RawMessage) (*NormalizePayload, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var payload NormalizePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode normalize payload: %w", err)
	}
	return &payload, nil
}

// TicketListOptions controls filtering and pagination for ticket listings.
// Listings are ordered by requested_time ascending so a consumer can resume
// from any offset and observe a stable sequence.
type TicketListOptions struct {
	Status *TicketStatus `json:"status,omitempty"`
	Limit  int           `json:"limit,omitempty"`
	Offset int           `json:"offset,omitempty"`
}

// TicketStats represents counts of tickets in each lifecycle state.
type TicketStats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// TicketStatusResponse is the polling view of a ticket: whether processing has
// finished, and the terminal fields once it has.
type TicketStatusResponse struct {
	Completed     bool       `json:"completed"`
	Success       *bool      `json:"success"`
	Requested     time.Time  `json:"requested"`
	ExecutionTime *float64   `json:"executionTime,omitempty"`
	CompletedTime *time.Time `json:"completedTime,omitempty"`
	Comment       *string    `json:"comment,omitempty"`
}

// StatusOf projects a Ticket into its polling view.
func StatusOf(t *Ticket) TicketStatusResponse {
	return TicketStatusResponse{
		Completed:     t.Status == TicketStatusCompleted,
		Success:       t.Success,
		Requested:     t.RequestedTime,
		ExecutionTime: t.ExecutionTime,
		CompletedTime: t.CompletedTime,
		Comment:       t.Comment,
	}
}
