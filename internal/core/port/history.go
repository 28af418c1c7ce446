package port

import (
	"context"

	"face2face/internal/core/domain"
)

// CallHistory persists terminal call outcomes. Record failures must never
// reach the live session path; the coordinator only logs them.
type CallHistory interface {
	Record(ctx context.Context, rec domain.CallRecord) error
	ListByIdentity(ctx context.Context, identity domain.Identity, limit int) ([]domain.CallRecord, error)
}
