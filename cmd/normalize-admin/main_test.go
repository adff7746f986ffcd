package main

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/opertusmundi/normalize/config"
	"github.com/opertusmundi/normalize/internal/domain/model"
	"github.com/stretchr/testify/require"
)

func captureStdout(t *testing.T, f func() error) string {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)

	defer func() {
		os.Stdout = oldStdout
	}()

	os.Stdout = w

	require.NoError(t, f())

	require.NoError(t, w.Close())
	os.Stdout = oldStdout

	output, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	return string(output)
}

func TestPrintTicketStatsRendersCounts(t *testing.T) {
	out := captureStdout(t, func() error {
		return printTicketStats(&model.TicketStats{
			Pending:   3,
			Running:   1,
			Completed: 7,
			Succeeded: 5,
			Failed:    2,
		})
	})

	require.Contains(t, out, "Pending")
	require.Contains(t, out, "3")
	require.Contains(t, out, "Succeeded")
	require.Contains(t, out, "Failed")
}

func TestPrintTicketListEmpty(t *testing.T) {
	out := captureStdout(t, func() error {
		return printTicketList(nil, listTicketsOptions{})
	})

	require.Contains(t, out, "No tickets found.")
}

func TestPrintTicketListRendersRows(t *testing.T) {
	success := true
	comment := "done"
	completed := time.Date(2021, 3, 15, 12, 30, 0, 0, time.UTC)

	out := captureStdout(t, func() error {
		return printTicketList([]*model.Ticket{
			{
				Token:         "tok-1",
				Status:        model.TicketStatusCompleted,
				Success:       &success,
				RequestedTime: time.Date(2021, 3, 15, 12, 0, 0, 0, time.UTC),
				CompletedTime: &completed,
				Comment:       &comment,
			},
			{
				Token:         "tok-2",
				Status:        model.TicketStatusPending,
				RequestedTime: time.Date(2021, 3, 15, 12, 5, 0, 0, time.UTC),
			},
		}, listTicketsOptions{Offset: 10})
	})

	require.Contains(t, out, "tok-1")
	require.Contains(t, out, "completed")
	require.Contains(t, out, "2021-03-15T12:30:00Z")
	require.Contains(t, out, "tok-2")
	require.Contains(t, out, "pending")
	require.Contains(t, out, "Showing 2 ticket(s) (offset 10)")
}

func TestPrintTicketStatusMissingTicket(t *testing.T) {
	out := captureStdout(t, func() error {
		return printTicketStatus(ticketStatusOptions{Ticket: "tok-missing"}, &ticketStatusView{Source: "database"})
	})

	require.Contains(t, out, "No ticket found for token tok-missing")
}

func TestParseReapFlagsUsesConfigDefaults(t *testing.T) {
	defaults := config.ReaperConfig{
		RunningMaxAge:   time.Hour,
		CompletedMaxAge: 168 * time.Hour,
		BatchSize:       1000,
	}

	opts, err := parseReapFlags(nil, defaults)
	require.NoError(t, err)
	require.Equal(t, time.Hour, opts.RunningMaxAge)
	require.Equal(t, 168*time.Hour, opts.CompletedMaxAge)
	require.Equal(t, 1000, opts.BatchSize)
	require.False(t, opts.Yes)
}

func TestParseListTicketsFlagsRejectsBadStatusLater(t *testing.T) {
	opts, err := parseListTicketsFlags([]string{"--status", "Pending", "--limit", "5"})
	require.NoError(t, err)
	require.Equal(t, "pending", opts.Status)
	require.Equal(t, 5, opts.Limit)

	_, err = parseListTicketsFlags([]string{"--limit", "0"})
	require.Error(t, err)
}

func TestRenderTTL(t *testing.T) {
	require.Equal(t, "no expiry", renderTTL(-1*time.Second))
	require.Equal(t, "key missing", renderTTL(-2*time.Second))
	require.Equal(t, "45s", renderTTL(45*time.Second))
}

func TestIsLikelyRemoteHost(t *testing.T) {
	require.False(t, isLikelyRemoteHost("localhost"))
	require.False(t, isLikelyRemoteHost("127.0.0.1"))
	require.False(t, isLikelyRemoteHost("db.local"))
	require.True(t, isLikelyRemoteHost("db.prod.example.com"))
	require.True(t, isLikelyRemoteHost("10.1.2.3"))
}
