package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	os.Clearenv()

	cfg := Load()

	assert.Equal(t, ":8080", cfg.HTTP.Addr)

	assert.False(t, cfg.DBEnabled)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "provident", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.Equal(t, "https://api.hubapi.com", cfg.HubSpot.BaseURL)
	assert.Equal(t, "1854622", cfg.HubSpot.PortalID)
	assert.Equal(t, "2-2532422", cfg.HubSpot.SystemTypeID)
	assert.Equal(t, "2-16284422", cfg.HubSpot.AgreementTypeID)
	assert.Equal(t, "2-34947969", cfg.HubSpot.DeviceTypeID)
	assert.Equal(t, 486, cfg.HubSpot.UnderwriterAssociationTypeID)
	assert.Equal(t, 482, cfg.HubSpot.RequestorAssociationTypeID)
	assert.Equal(t, []int{263, 280}, cfg.HubSpot.SiteAdminTypeIDs)
	assert.Equal(t, 395, cfg.HubSpot.SignerTypeID)

	assert.Equal(t, "provident-certificates-temp", cfg.Storage.GCSBucket)
	assert.Equal(t, "/certificates", cfg.Storage.HubSpotFolderPath)
	assert.Equal(t, "/certificate-previews", cfg.Storage.PreviewFolderPath)

	assert.Equal(t, "smtp.gmail.com", cfg.SMTP.Host)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, "customerservice@providentsecurity.ca", cfg.SMTP.FromEmail)
	assert.True(t, cfg.SMTP.TestingMode)
	assert.Equal(t, "mike+testing@providentsecurity.ca", cfg.SMTP.TestOverride)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("DB_ENABLED", "true")
	os.Setenv("DB_HOST", "db.internal")
	os.Setenv("DB_PORT", "5433")
	os.Setenv("REDIS_ADDR", "redis.internal:6379")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("HUBSPOT_ACCESS_TOKEN", "pat-na1-test")
	os.Setenv("CLIENT_SECRET", "shh")
	os.Setenv("SYSTEM_OBJECT_TYPE_ID", "2-111")
	os.Setenv("UNDERWRITER_ASSOCIATION_TYPE_ID", "600")
	os.Setenv("GCS_BUCKET_NAME", "certs-prod")
	os.Setenv("GENERATED_CERTIFICATES_FOLDER_ID", "folder-abc")
	os.Setenv("SMTP_PORT", "2525")
	os.Setenv("EMAIL_TESTING_MODE", "false")

	cfg := Load()

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.True(t, cfg.DBEnabled)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "pat-na1-test", cfg.HubSpot.AccessToken)
	assert.Equal(t, "shh", cfg.HubSpot.ClientSecret)
	assert.Equal(t, "2-111", cfg.HubSpot.SystemTypeID)
	assert.Equal(t, 600, cfg.HubSpot.UnderwriterAssociationTypeID)
	assert.Equal(t, "certs-prod", cfg.Storage.GCSBucket)
	assert.Equal(t, "folder-abc", cfg.Storage.DriveCertsFolderID)
	assert.Equal(t, 2525, cfg.SMTP.Port)
	assert.False(t, cfg.SMTP.TestingMode)
}

func TestParseIntFallback(t *testing.T) {
	os.Clearenv()
	os.Setenv("DB_PORT", "not-a-number")
	os.Setenv("SMTP_PORT", "")

	cfg := Load()

	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 587, cfg.SMTP.Port)
}
