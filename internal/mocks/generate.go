// Package mocks provides mock implementations for testing the normalize ticket system.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockTicketRepository(ctrl)
//	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(ticket, nil)
package mocks

// Generate mock for TicketRepository interface from internal/core package.
// This creates MockTicketRepository with methods for all TicketRepository interface methods:
// Create, GetByToken, MarkRunning, MarkCompleted, ClaimNext, WaitForNotification, List, Stats
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=ticket_repository_mock.go github.com/opertusmundi/normalize/internal/core TicketRepository
