// Package engine assembles the certificate merge-field map from raw
// HubSpot records: fetch, validate, allocate a serial, classify the
// device inventory, and flatten everything into the fields the document
// renderer binds to.
package engine

import (
	"context"
	"time"

	"provident-certs/internal/models"

	"go.uber.org/zap"
)

// Engine is the certificate data-assembly orchestrator and the only
// entry point of the core. It keeps no state between runs; per-system
// serialization happens inside the allocator.
type Engine struct {
	fetcher   *Fetcher
	allocator *Allocator
	logger    *zap.Logger

	// clock is swapped in tests for reproducible timestamps.
	clock func() time.Time
}

func New(fetcher *Fetcher, allocator *Allocator, logger *zap.Logger) *Engine {
	return &Engine{
		fetcher:   fetcher,
		allocator: allocator,
		logger:    logger,
		clock:     time.Now,
	}
}

// Generate runs Fetch → Validate → Allocate → Classify → Assemble and
// returns the merge-field map ready for the rendering service.
//
// Validation failures surface as *ValidationError before any counter is
// touched. After allocation succeeds the serial is committed even if a
// later stage fails; the numbering gap is accepted.
func (e *Engine) Generate(ctx context.Context, agreementID, systemID, siteID, brokerEmail, requestorName string) (models.FieldMap, error) {
	e.logger.Info("Generating certificate data",
		zap.String("agreement_id", agreementID),
		zap.String("system_id", systemID),
		zap.String("site_id", siteID),
	)

	bundle, err := e.fetcher.Fetch(ctx, agreementID, systemID, siteID)
	if err != nil {
		return nil, err
	}

	if ok, violations := Validate(bundle); !ok {
		e.logger.Warn("Certificate data validation failed",
			zap.Strings("violations", violations),
		)
		return nil, &ValidationError{Violations: violations}
	}

	certNumber, err := e.allocator.Allocate(ctx, systemID, siteID)
	if err != nil {
		return nil, err
	}

	grouped := Classify(bundle.Devices)

	fields := Assemble(bundle, grouped, certNumber, brokerEmail, requestorName, e.clock())
	e.logger.Info("Assembled certificate fields",
		zap.String("certificate_number", certNumber),
		zap.Int("field_count", len(fields)),
	)
	return fields, nil
}
