// Package repository persists the certificate issuance log.
package repository

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// Issuance is one recorded certificate issue.
type Issuance struct {
	ID                int64     `json:"id"`
	CertificateNumber string    `json:"certificate_number"`
	AgreementID       string    `json:"agreement_id"`
	SystemID          string    `json:"system_id"`
	SiteID            string    `json:"site_id"`
	RequestorName     string    `json:"requestor_name"`
	BrokerEmail       string    `json:"broker_email"`
	PDFURL            string    `json:"pdf_url"`
	IssuedAt          time.Time `json:"issued_at"`
}

// IssuanceLog records issued certificates. The database is optional, so
// callers always go through this interface and a no-op stands in when
// DB_ENABLED is off.
type IssuanceLog interface {
	Record(ctx context.Context, iss *Issuance) error
	ListBySite(ctx context.Context, siteID string, limit int) ([]*Issuance, error)
}

// IssuanceRepository is the PostgreSQL-backed log.
type IssuanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewIssuanceRepository(db *sql.DB, logger *zap.Logger) *IssuanceRepository {
	return &IssuanceRepository{db: db, logger: logger}
}

func (r *IssuanceRepository) Record(ctx context.Context, iss *Issuance) error {
	query := `
		INSERT INTO certificate_issuances
			(certificate_number, agreement_id, system_id, site_id, requestor_name, broker_email, pdf_url, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	if iss.IssuedAt.IsZero() {
		iss.IssuedAt = time.Now().UTC()
	}

	err := r.db.QueryRowContext(ctx, query,
		iss.CertificateNumber,
		iss.AgreementID,
		iss.SystemID,
		iss.SiteID,
		iss.RequestorName,
		iss.BrokerEmail,
		iss.PDFURL,
		iss.IssuedAt,
	).Scan(&iss.ID)
	if err != nil {
		r.logger.Error("Failed to record issuance",
			zap.String("certificate_number", iss.CertificateNumber),
			zap.Error(err),
		)
		return err
	}

	r.logger.Debug("Recorded certificate issuance",
		zap.Int64("id", iss.ID),
		zap.String("certificate_number", iss.CertificateNumber),
	)
	return nil
}

func (r *IssuanceRepository) ListBySite(ctx context.Context, siteID string, limit int) ([]*Issuance, error) {
	query := `
		SELECT id, certificate_number, agreement_id, system_id, site_id,
		       requestor_name, broker_email, pdf_url, issued_at
		FROM certificate_issuances
		WHERE site_id = $1
		ORDER BY issued_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, siteID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Issuance
	for rows.Next() {
		iss := &Issuance{}
		if err := rows.Scan(
			&iss.ID,
			&iss.CertificateNumber,
			&iss.AgreementID,
			&iss.SystemID,
			&iss.SiteID,
			&iss.RequestorName,
			&iss.BrokerEmail,
			&iss.PDFURL,
			&iss.IssuedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, iss)
	}
	return out, rows.Err()
}

// NoopIssuanceLog is used when the database is disabled.
type NoopIssuanceLog struct{}

func (NoopIssuanceLog) Record(ctx context.Context, iss *Issuance) error { return nil }

func (NoopIssuanceLog) ListBySite(ctx context.Context, siteID string, limit int) ([]*Issuance, error) {
	return nil, nil
}
