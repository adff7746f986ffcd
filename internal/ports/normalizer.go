package ports

// Package ports defines interfaces (hexagonal ports) for processing behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"

	"github.com/opertusmundi/normalize/internal/domain/model"
)

// NormalizeRequest carries everything a Normalizer needs to process one
// ticket's staged source file.
type NormalizeRequest struct {
	// Token identifies the ticket being processed.
	Token string
	// Payload is the parsed request payload, including the staged
	// source path and the per-column transform selections.
	Payload *model.NormalizePayload
	// OutputDir is the ticket's own output directory. It exists and is
	// writable; the Normalizer places its result file inside it.
	OutputDir string
}

// NormalizeResult reports where a Normalizer wrote its output.
type NormalizeResult struct {
	// OutputPath is the absolute path of the produced file.
	OutputPath string
	// Filesize is the size of the produced file in bytes.
	Filesize int64
}

// Normalizer transforms one staged source file into a normalized output
// file. Implementations must honor ctx cancellation and return an error
// describing the failure in terms safe to surface to the requester.
type Normalizer interface {
	Normalize(ctx context.Context, req NormalizeRequest) (NormalizeResult, error)
}
