package async

import (
	"context"
	"errors"
	"time"

	"github.com/joseph-ayodele/claims-processor/constants"
	"github.com/joseph-ayodele/claims-processor/internal/claims"
	"github.com/joseph-ayodele/claims-processor/internal/ingest"
)

// ErrQueueClosed is returned by Enqueue after Shutdown.
var ErrQueueClosed = errors.New("queue is shutting down")

// ClaimJob is one claim waiting to be processed.
type ClaimJob struct {
	ID          string
	Name        string // claim directory or caller label
	Uploads     []ingest.Upload
	SubmittedAt time.Time
}

// Outcome is reported once per job after processing.
type Outcome struct {
	Job    ClaimJob
	Status constants.JobStatus
	Result claims.ClaimResult
	Err    error
}

// ClaimProcessor is the part of claims.Processor the queue drives.
type ClaimProcessor interface {
	ProcessClaim(ctx context.Context, uploads []ingest.Upload) (claims.ClaimResult, error)
}

// ResultSink persists finished claims.
type ResultSink interface {
	Save(ctx context.Context, res claims.ClaimResult) error
}

type Queue interface {
	Enqueue(ctx context.Context, job ClaimJob) error
	Shutdown(ctx context.Context)
}
