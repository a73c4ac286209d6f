package config

import (
	"os"
	"strconv"
)

// Config provident-certs (HTTP API) configuration
type Config struct {
	HTTP struct {
		Addr string
	}
	DBEnabled bool
	Database  DatabaseConfig
	Redis     struct {
		Addr     string
		Password string
		DB       int
	}
	Log struct {
		Level  string
		Format string
	}
	HubSpot  HubSpotConfig
	WebMerge WebMergeConfig
	Storage  StorageConfig
	SMTP     SMTPConfig
}

// DatabaseConfig PostgreSQL connection settings (issuance log)
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// HubSpotConfig portal-specific HubSpot settings.
// Object type IDs and association type IDs differ between the sandbox and
// production portals, so all of them come from the environment.
type HubSpotConfig struct {
	BaseURL      string
	AccessToken  string
	ClientSecret string // request signature validation
	PortalID     string

	SystemTypeID    string
	AgreementTypeID string
	DeviceTypeID    string

	// Association type IDs (portal-specific)
	SiteAssociationTypeID          int
	BrokerCompanyAssociationTypeID int
	BrokerContactAssociationTypeID int
	UnderwriterAssociationTypeID   int
	RequestorAssociationTypeID     int
	SystemAssociationTypeID        int
	AgreementAssociationTypeID     int

	// Contacts authorized to request certificates: site admin association
	// types plus the agreement signer type.
	SiteAdminTypeIDs []int
	SignerTypeID     int
}

// WebMergeConfig document-merge service settings
type WebMergeConfig struct {
	URL string
}

// StorageConfig PDF distribution targets
type StorageConfig struct {
	GCSBucket            string
	GCSAccessToken       string
	DriveAccessToken     string
	DriveCertsFolderID   string // master "generated certificates" folder
	HubSpotFolderPath    string
	PreviewFolderPath    string
}

// SMTPConfig outbound certificate email settings
type SMTPConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	FromEmail string
	FromName  string

	// TestingMode redirects every outbound email to TestOverride.
	TestingMode  bool
	TestOverride string
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	// Issuance log is optional: without a DB the service still issues
	// certificates, it just keeps no local audit trail.
	cfg.DBEnabled = getEnv("DB_ENABLED", "false") == "true"
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "provident")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0
	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.HubSpot.BaseURL = getEnv("HUBSPOT_BASE_URL", "https://api.hubapi.com")
	cfg.HubSpot.AccessToken = getEnv("HUBSPOT_ACCESS_TOKEN", "")
	cfg.HubSpot.ClientSecret = getEnv("CLIENT_SECRET", "")
	cfg.HubSpot.PortalID = getEnv("HUBSPOT_PORTAL_ID", "1854622")
	cfg.HubSpot.SystemTypeID = getEnv("SYSTEM_OBJECT_TYPE_ID", "2-2532422")
	cfg.HubSpot.AgreementTypeID = getEnv("AGREEMENT_OBJECT_TYPE_ID", "2-16284422")
	cfg.HubSpot.DeviceTypeID = getEnv("DEVICE_OBJECT_TYPE_ID", "2-34947969")

	cfg.HubSpot.SiteAssociationTypeID = parseInt(getEnv("SITE_ASSOCIATION_TYPE_ID", "0"), 0)
	cfg.HubSpot.BrokerCompanyAssociationTypeID = parseInt(getEnv("BROKER_COMPANY_ASSOCIATION_TYPE_ID", "0"), 0)
	cfg.HubSpot.BrokerContactAssociationTypeID = parseInt(getEnv("BROKER_CONTACT_ASSOCIATION_TYPE_ID", "0"), 0)
	cfg.HubSpot.UnderwriterAssociationTypeID = parseInt(getEnv("UNDERWRITER_ASSOCIATION_TYPE_ID", "486"), 486)
	cfg.HubSpot.RequestorAssociationTypeID = parseInt(getEnv("REQUESTOR_ASSOCIATION_TYPE_ID", "482"), 482)
	cfg.HubSpot.SystemAssociationTypeID = parseInt(getEnv("SYSTEM_ASSOCIATION_TYPE_ID", "0"), 0)
	cfg.HubSpot.AgreementAssociationTypeID = parseInt(getEnv("AGREEMENT_ASSOCIATION_TYPE_ID", "0"), 0)
	cfg.HubSpot.SiteAdminTypeIDs = []int{263, 280}
	cfg.HubSpot.SignerTypeID = 395

	cfg.WebMerge.URL = getEnv("WEBMERGE_URL", "https://www.webmerge.me/merge/1238246/45hyg1?download=1")

	cfg.Storage.GCSBucket = getEnv("GCS_BUCKET_NAME", "provident-certificates-temp")
	cfg.Storage.GCSAccessToken = getEnv("GCS_ACCESS_TOKEN", "")
	cfg.Storage.DriveAccessToken = getEnv("DRIVE_ACCESS_TOKEN", "")
	cfg.Storage.DriveCertsFolderID = getEnv("GENERATED_CERTIFICATES_FOLDER_ID", "")
	cfg.Storage.HubSpotFolderPath = getEnv("HUBSPOT_FILES_FOLDER", "/certificates")
	cfg.Storage.PreviewFolderPath = getEnv("HUBSPOT_PREVIEWS_FOLDER", "/certificate-previews")

	cfg.SMTP.Host = getEnv("SMTP_HOST", "smtp.gmail.com")
	cfg.SMTP.Port = parseInt(getEnv("SMTP_PORT", "587"), 587)
	cfg.SMTP.User = getEnv("SMTP_USER", "")
	cfg.SMTP.Password = getEnv("SMTP_PASSWORD", "")
	cfg.SMTP.FromEmail = getEnv("SMTP_FROM_EMAIL", "customerservice@providentsecurity.ca")
	cfg.SMTP.FromName = getEnv("SMTP_FROM_NAME", "Provident Security - Customer Service")
	cfg.SMTP.TestingMode = getEnv("EMAIL_TESTING_MODE", "true") == "true"
	cfg.SMTP.TestOverride = getEnv("EMAIL_TEST_OVERRIDE", "mike+testing@providentsecurity.ca")

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
