package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"provident-certs/internal/config"
	"provident-certs/internal/models"
	"provident-certs/internal/repository"
	"provident-certs/internal/storage"
)

// Generator produces the merge-field map for one certificate.
type Generator interface {
	Generate(ctx context.Context, agreementID, systemID, siteID, brokerEmail, requestorName string) (models.FieldMap, error)
}

// Renderer turns a field map into a PDF.
type Renderer interface {
	Render(ctx context.Context, fields models.FieldMap) ([]byte, error)
}

// ObjectStore is the backup bucket.
type ObjectStore interface {
	Upload(ctx context.Context, objectName string, content []byte, contentType string) (string, error)
}

// DriveStore is the primary certificate archive.
type DriveStore interface {
	GetOrCreateFolder(ctx context.Context, parentID, name string) (string, error)
	Upload(ctx context.Context, folderID, filename string, content []byte, mimeType string) (*storage.DriveFile, error)
	CreateShortcut(ctx context.Context, fileID, name, parentID string) (string, error)
}

// GenerateRequest identifies the records a certificate is issued from
// plus the recipient details stamped onto it.
type GenerateRequest struct {
	AgreementID   string
	SystemID      string
	SiteID        string
	SiteName      string
	SiteFolderID  string
	RequestorName string
	BrokerCompany string
	BrokerContact string
	BrokerEmail   string
}

// GenerateResult carries every URL the certificate landed at. PDFURL is
// the primary link (Drive when available, the bucket otherwise).
type GenerateResult struct {
	CertificateID     string
	CertificateNumber string
	PDFURL            string
	DriveURL          string
	GCSBackupURL      string
	HubSpotURL        string
}

var pacific = time.FixedZone("PST", -8*3600)

// CertificateService runs the full issue pipeline: engine, rendering,
// then distribution. Distribution targets are individually optional and
// individually non-fatal; the certificate exists once rendering
// succeeds.
type CertificateService struct {
	generator Generator
	renderer  Renderer
	gcs       ObjectStore
	drive     DriveStore
	crm       CRM
	issuance  repository.IssuanceLog

	storageCfg *config.StorageConfig
	hubspotCfg *config.HubSpotConfig
	mailer     Sender
	fetchPDF   func(ctx context.Context, url string) ([]byte, error)
	logger     *zap.Logger
	now        func() time.Time
}

func NewCertificateService(
	generator Generator,
	renderer Renderer,
	gcs ObjectStore,
	drive DriveStore,
	crm CRM,
	issuance repository.IssuanceLog,
	mailer Sender,
	fetchPDF func(ctx context.Context, url string) ([]byte, error),
	storageCfg *config.StorageConfig,
	hubspotCfg *config.HubSpotConfig,
	logger *zap.Logger,
) *CertificateService {
	return &CertificateService{
		generator:  generator,
		renderer:   renderer,
		gcs:        gcs,
		drive:      drive,
		crm:        crm,
		issuance:   issuance,
		mailer:     mailer,
		fetchPDF:   fetchPDF,
		storageCfg: storageCfg,
		hubspotCfg: hubspotCfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Generate issues one certificate and distributes the PDF.
func (s *CertificateService) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	fields, err := s.generator.Generate(ctx, req.AgreementID, req.SystemID, req.SiteID, req.BrokerEmail, req.RequestorName)
	if err != nil {
		return nil, err
	}

	pdf, err := s.renderer.Render(ctx, fields)
	if err != nil {
		return nil, err
	}

	result := &GenerateResult{
		CertificateID:     uuid.NewString(),
		CertificateNumber: fieldString(fields, "CERTIFICATE_Number"),
	}

	if s.gcs != nil {
		objectName := fmt.Sprintf("certificates/%s.pdf", result.CertificateID)
		url, err := s.gcs.Upload(ctx, objectName, pdf, "application/pdf")
		if err != nil {
			s.logger.Warn("GCS backup upload failed", zap.Error(err))
		} else {
			result.GCSBackupURL = url
		}
	}

	if s.drive != nil && s.storageCfg.DriveCertsFolderID != "" {
		s.uploadToDrive(ctx, req, pdf, result)
	}

	if hubspotURL := s.uploadToHubSpot(ctx, req, pdf, result.CertificateID); hubspotURL != "" {
		result.HubSpotURL = hubspotURL
	}

	result.PDFURL = firstNonEmpty(result.DriveURL, result.GCSBackupURL, result.HubSpotURL)

	if err := s.issuance.Record(ctx, &repository.Issuance{
		CertificateNumber: result.CertificateNumber,
		AgreementID:       req.AgreementID,
		SystemID:          req.SystemID,
		SiteID:            req.SiteID,
		RequestorName:     req.RequestorName,
		BrokerEmail:       req.BrokerEmail,
		PDFURL:            result.PDFURL,
	}); err != nil {
		s.logger.Warn("Issuance log write failed",
			zap.String("certificate_number", result.CertificateNumber),
			zap.Error(err),
		)
	}

	s.logger.Info("Certificate generated",
		zap.String("certificate_id", result.CertificateID),
		zap.String("certificate_number", result.CertificateNumber),
		zap.String("pdf_url", result.PDFURL),
	)
	return result, nil
}

func (s *CertificateService) uploadToDrive(ctx context.Context, req *GenerateRequest, pdf []byte, result *GenerateResult) {
	siteID := req.SiteID
	if siteID == "" {
		siteID = "unknown"
	}
	filename := fmt.Sprintf("Certificate_%s_%s.pdf", siteID, s.now().In(pacific).Format("20060102-1504"))

	file, err := s.drive.Upload(ctx, s.storageCfg.DriveCertsFolderID, filename, pdf, "application/pdf")
	if err != nil {
		s.logger.Warn("Drive upload failed", zap.Error(err))
		return
	}
	result.DriveURL = file.WebViewLink

	if req.SiteFolderID == "" || file.ID == "" {
		return
	}
	shortcutFolder, err := s.drive.GetOrCreateFolder(ctx, req.SiteFolderID, "Certificates")
	if err != nil {
		s.logger.Warn("Could not resolve site certificates folder", zap.Error(err))
		return
	}
	if _, err := s.drive.CreateShortcut(ctx, file.ID, filename, shortcutFolder); err != nil {
		s.logger.Warn("Could not create shortcut in site folder", zap.Error(err))
	}
}

// History returns the most recent recorded issuances for a site, newest
// first. Empty when no database is configured.
func (s *CertificateService) History(ctx context.Context, siteID string, limit int) ([]*repository.Issuance, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.issuance.ListBySite(ctx, siteID, limit)
}

func (s *CertificateService) uploadToHubSpot(ctx context.Context, req *GenerateRequest, pdf []byte, certificateID string) string {
	siteName := req.SiteName
	if siteName == "" {
		siteName = "Certificate"
	}
	name := fmt.Sprintf("certificate-%s-%s.pdf", strings.ReplaceAll(siteName, " ", "_"), shortID(certificateID))

	url, err := s.crm.UploadFile(ctx, name, pdf, "application/pdf", s.storageCfg.HubSpotFolderPath, "PUBLIC_NOT_INDEXABLE")
	if err != nil {
		s.logger.Warn("HubSpot file upload failed", zap.Error(err))
		return ""
	}
	return url
}

func fieldString(fields models.FieldMap, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// shortID is the first uuid segment, used in filenames and note bodies.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
