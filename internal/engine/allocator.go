package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"provident-certs/internal/lock"

	"go.uber.org/zap"
)

// counterProperty is the only CRM field this service ever mutates.
const counterProperty = "certificate_counter"

// Allocator issues site-scoped certificate serials by bumping the
// per-system counter stored in the CRM. The read-increment-write pair is
// serialized per system through the Locker; allocation commits before
// the PDF is produced, so a failure downstream leaves a numbering gap
// rather than a duplicate.
type Allocator struct {
	crm          CRM
	systemTypeID string
	locker       lock.Locker
	logger       *zap.Logger
}

func NewAllocator(crm CRM, systemTypeID string, locker lock.Locker, logger *zap.Logger) *Allocator {
	return &Allocator{
		crm:          crm,
		systemTypeID: systemTypeID,
		locker:       locker,
		logger:       logger,
	}
}

// Allocate returns "{siteID}-{counter+1}" zero-padded to three digits
// and persists the incremented counter on the system record.
func (a *Allocator) Allocate(ctx context.Context, systemID, siteID string) (string, error) {
	release, err := a.locker.Acquire(ctx, systemID)
	if err != nil {
		return "", &AllocationError{SystemID: systemID, Err: err}
	}
	defer release()

	props, err := a.crm.GetProperties(ctx, a.systemTypeID, systemID, []string{counterProperty})
	if err != nil {
		return "", &AllocationError{SystemID: systemID, Err: fmt.Errorf("read counter: %w", err)}
	}

	next := parseCounter(props[counterProperty]) + 1
	if err := a.crm.UpdateProperties(ctx, a.systemTypeID, systemID, map[string]string{
		counterProperty: strconv.Itoa(next),
	}); err != nil {
		return "", &AllocationError{SystemID: systemID, Err: fmt.Errorf("write counter: %w", err)}
	}

	number := fmt.Sprintf("%s-%03d", siteID, next)
	a.logger.Info("Allocated certificate number",
		zap.String("system_id", systemID),
		zap.String("certificate_number", number),
	)
	return number, nil
}

// parseCounter tolerates integer and floating-point textual
// representations; anything else restarts the counter at zero.
func parseCounter(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return int(f)
}
