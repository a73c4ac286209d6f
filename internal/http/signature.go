package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	signatureHeader        = "X-HubSpot-Signature"
	signatureVersionHeader = "X-HubSpot-Signature-Version"
	timestampHeader        = "X-HubSpot-Request-Timestamp"

	// v3 timestamps older than this are rejected.
	maxTimestampSkew = 5 * time.Minute
)

// SignatureValidator checks HubSpot request signatures. CRM cards sign
// with v2 (SHA-256 hex of secret+method+url+body), webhooks with v3
// (HMAC-SHA256 base64 of method+url+body+timestamp).
type SignatureValidator struct {
	secret string
	logger *zap.Logger

	// now is swapped in tests for the v3 timestamp window.
	now func() time.Time
}

func NewSignatureValidator(secret string, logger *zap.Logger) *SignatureValidator {
	return &SignatureValidator{
		secret: secret,
		logger: logger,
		now:    time.Now,
	}
}

// Validate checks the request signature against the already-read body.
// An empty configured secret disables validation.
func (v *SignatureValidator) Validate(r *http.Request, body []byte) bool {
	if v.secret == "" {
		v.logger.Warn("Client secret not set, skipping signature validation")
		return true
	}

	signature := r.Header.Get(signatureHeader)
	if signature == "" {
		v.logger.Error("Missing request signature header")
		return false
	}

	version := r.Header.Get(signatureVersionHeader)
	if version == "" {
		version = "v2"
	}

	url := requestURL(r)

	switch version {
	case "v2":
		return v.validateV2(signature, r.Method, url, body)
	case "v3":
		return v.validateV3(signature, r.Method, url, body, r.Header.Get(timestampHeader))
	default:
		v.logger.Error("Unknown signature version", zap.String("version", version))
		return false
	}
}

func (v *SignatureValidator) validateV2(signature, method, url string, body []byte) bool {
	h := sha256.New()
	h.Write([]byte(v.secret))
	h.Write([]byte(method))
	h.Write([]byte(url))
	h.Write(body)
	expected := hex.EncodeToString(h.Sum(nil))

	ok := hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
	if !ok {
		v.logger.Error("v2 signature mismatch", zap.String("url", url))
	}
	return ok
}

func (v *SignatureValidator) validateV3(signature, method, url string, body []byte, timestamp string) bool {
	if timestamp == "" {
		v.logger.Error("Missing timestamp for v3 signature")
		return false
	}
	requestMillis, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		v.logger.Error("Invalid v3 signature timestamp", zap.String("timestamp", timestamp))
		return false
	}
	skew := v.now().UnixMilli() - requestMillis
	if skew < 0 {
		skew = -skew
	}
	if skew > maxTimestampSkew.Milliseconds() {
		v.logger.Error("v3 signature timestamp outside window",
			zap.Int64("skew_ms", skew),
		)
		return false
	}

	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write([]byte(method))
	mac.Write([]byte(url))
	mac.Write(body)
	mac.Write([]byte(timestamp))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	ok := hmac.Equal([]byte(expected), []byte(signature))
	if !ok {
		v.logger.Error("v3 signature mismatch", zap.String("url", url))
	}
	return ok
}

// requestURL reconstructs the absolute URL HubSpot signed. The service
// runs behind a TLS-terminating proxy, so the scheme is always https.
func requestURL(r *http.Request) string {
	return "https://" + r.Host + r.URL.RequestURI()
}
