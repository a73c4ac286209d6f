package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"provident-certs/internal/engine"
	"provident-certs/internal/repository"
	"provident-certs/internal/service"
)

// Handler implements the API routes over the lookup and certificate
// services.
type Handler struct {
	lookups   *service.LookupService
	certs     *service.CertificateService
	validator *SignatureValidator
	logger    *zap.Logger
}

func NewHandler(lookups *service.LookupService, certs *service.CertificateService, validator *SignatureValidator, logger *zap.Logger) *Handler {
	return &Handler{
		lookups:   lookups,
		certs:     certs,
		validator: validator,
		logger:    logger,
	}
}

// GetSystems returns the active security systems for a site.
func (h *Handler) GetSystems(w http.ResponseWriter, req *http.Request, body []byte) {
	var payload struct {
		SiteID string `json:"siteId"`
	}
	if err := decodeJSON(body, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No data provided"})
		return
	}
	if payload.SiteID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No siteId provided"})
		return
	}

	systems, hadLoadErrors, err := h.lookups.ActiveSystems(req.Context(), payload.SiteID)
	if err != nil {
		h.logger.Error("Failed to get systems", zap.String("site_id", payload.SiteID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Failed to get systems for this site",
		})
		return
	}

	if len(systems) == 0 {
		if hadLoadErrors {
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"success": false,
				"error":   "Security systems are associated with this site, but the system records could not be loaded from HubSpot. This may be a permissions issue or the records were deleted.",
				"systems": []service.Option{},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   "No active security systems found for this site. Systems must have status='Active' and category='Security'.",
			"systems": []service.Option{},
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"systems": systems,
	})
}

// GetAgreements returns the active agreements for a system, with a
// site-level fallback when the system has none.
func (h *Handler) GetAgreements(w http.ResponseWriter, req *http.Request, body []byte) {
	var payload struct {
		SystemID string `json:"systemId"`
		SiteID   string `json:"siteId"`
	}
	if err := decodeJSON(body, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No data provided"})
		return
	}
	if payload.SystemID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No systemId provided"})
		return
	}

	agreements, usingFallback, err := h.lookups.ActiveAgreements(req.Context(), payload.SystemID, payload.SiteID)
	if err != nil {
		h.logger.Error("Failed to get agreements", zap.String("system_id", payload.SystemID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Failed to get agreements for this system",
		})
		return
	}

	if len(agreements) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":    false,
			"error":      "No active service agreements found for this site. Certificates cannot be created for sites without an active 'Services Agreement' or 'ULC Fire Agreement' in the Active stage.",
			"agreements": []service.AgreementOption{},
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"agreements":    agreements,
		"usingFallback": usingFallback,
	})
}

// GetBrokers returns every insurance broker company.
func (h *Handler) GetBrokers(w http.ResponseWriter, req *http.Request, body []byte) {
	brokers, err := h.lookups.Brokers(req.Context())
	if err != nil {
		h.logger.Error("Failed to search brokers", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Failed to search brokers",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"brokers": brokers,
	})
}

// GetUnderwriters returns every insurance underwriter company.
func (h *Handler) GetUnderwriters(w http.ResponseWriter, req *http.Request, body []byte) {
	underwriters, err := h.lookups.Underwriters(req.Context())
	if err != nil {
		h.logger.Error("Failed to search underwriters", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Failed to search underwriters",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"underwriters": underwriters,
	})
}

// GetBrokerContacts returns the contacts of a broker company.
func (h *Handler) GetBrokerContacts(w http.ResponseWriter, req *http.Request, body []byte) {
	var payload struct {
		BrokerID string `json:"brokerId"`
	}
	if err := decodeJSON(body, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No data provided"})
		return
	}
	if payload.BrokerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No brokerId provided"})
		return
	}

	contacts, err := h.lookups.BrokerContacts(req.Context(), payload.BrokerID)
	if err != nil {
		h.logger.Error("Failed to get broker contacts", zap.String("broker_id", payload.BrokerID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Failed to get broker contacts",
		})
		return
	}

	if len(contacts) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":  false,
			"error":    "No contacts found for this broker company. Please enter contact information manually or add contacts to this broker in HubSpot.",
			"contacts": []service.Contact{},
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"contacts": contacts,
	})
}

// GetRequestors returns the contacts authorized to request a
// certificate for the site. There is no fallback to all contacts.
func (h *Handler) GetRequestors(w http.ResponseWriter, req *http.Request, body []byte) {
	var payload struct {
		SiteID      string `json:"siteId"`
		SystemID    string `json:"systemId"`
		AgreementID string `json:"agreementId"`
	}
	if err := decodeJSON(body, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No data provided"})
		return
	}
	if payload.SiteID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No siteId provided"})
		return
	}

	requestors, hadLoadErrors, err := h.lookups.AuthorizedRequestors(req.Context(), payload.SiteID, payload.AgreementID)
	if err != nil {
		h.logger.Error("Failed to get requestors", zap.String("site_id", payload.SiteID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success":    false,
			"error":      "Failed to get contacts for site",
			"requestors": []service.Contact{},
		})
		return
	}

	if len(requestors) == 0 {
		if hadLoadErrors {
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"success":    false,
				"error":      "Authorized requestors exist but their contact records could not be loaded from HubSpot. This may be a permissions issue.",
				"requestors": []service.Contact{},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":    false,
			"error":      "No authorized requestors found for this site. To request a certificate, a contact must either be associated to the site as a site admin, or be associated to the service agreement as a signer.",
			"requestors": []service.Contact{},
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"requestors": requestors,
	})
}

// GetCertificateHistory returns the issuance log entries for a site.
func (h *Handler) GetCertificateHistory(w http.ResponseWriter, req *http.Request, body []byte) {
	var payload struct {
		SiteID string `json:"siteId"`
		Limit  int    `json:"limit"`
	}
	if err := decodeJSON(body, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No data provided"})
		return
	}
	if payload.SiteID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No siteId provided"})
		return
	}

	history, err := h.certs.History(req.Context(), payload.SiteID, payload.Limit)
	if err != nil {
		h.logger.Error("Failed to load certificate history", zap.String("site_id", payload.SiteID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Failed to load certificate history",
		})
		return
	}
	if history == nil {
		history = []*repository.Issuance{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"certificates": history,
	})
}

// GenerateCertificate runs the engine, renders the PDF and distributes
// it, returning every URL it landed at.
func (h *Handler) GenerateCertificate(w http.ResponseWriter, req *http.Request, body []byte) {
	var payload struct {
		CertificateData struct {
			AgreementID   string `json:"agreementId"`
			SystemID      string `json:"systemId"`
			SiteID        string `json:"siteId"`
			SiteName      string `json:"siteName"`
			SiteFolderID  string `json:"siteFolderId"`
			RequestorName string `json:"requestorName"`
			BrokerCompany string `json:"brokerCompany"`
			BrokerContact string `json:"brokerContact"`
			BrokerEmail   string `json:"brokerEmail"`
		} `json:"certificateData"`
	}
	if err := decodeJSON(body, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No data provided"})
		return
	}

	data := payload.CertificateData
	missing := missingFields(map[string]string{
		"requestorName": data.RequestorName,
		"brokerCompany": data.BrokerCompany,
		"brokerContact": data.BrokerContact,
		"brokerEmail":   data.BrokerEmail,
		"agreementId":   data.AgreementID,
		"systemId":      data.SystemID,
		"siteId":        data.SiteID,
	})
	if len(missing) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "Missing required fields: " + strings.Join(missing, ", "),
		})
		return
	}

	result, err := h.certs.Generate(req.Context(), &service.GenerateRequest{
		AgreementID:   data.AgreementID,
		SystemID:      data.SystemID,
		SiteID:        data.SiteID,
		SiteName:      data.SiteName,
		SiteFolderID:  data.SiteFolderID,
		RequestorName: data.RequestorName,
		BrokerCompany: data.BrokerCompany,
		BrokerContact: data.BrokerContact,
		BrokerEmail:   data.BrokerEmail,
	})
	if err != nil {
		h.writeGenerateError(w, err)
		return
	}

	response := map[string]any{
		"success":            true,
		"certificate_id":     result.CertificateID,
		"certificate_number": result.CertificateNumber,
		"pdf_url":            result.PDFURL,
		"message":            "Certificate generated successfully",
	}
	if result.HubSpotURL != "" {
		response["hubspot_url"] = result.HubSpotURL
	}
	if result.DriveURL != "" {
		response["drive_url"] = result.DriveURL
	}
	if result.GCSBackupURL != "" {
		response["gcs_backup_url"] = result.GCSBackupURL
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) writeGenerateError(w http.ResponseWriter, err error) {
	var validationErr *engine.ValidationError
	if errors.As(err, &validationErr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success":    false,
			"error":      "Certificate data is incomplete",
			"violations": validationErr.Violations,
		})
		return
	}

	var fetchErr *engine.FetchError
	if errors.As(err, &fetchErr) {
		h.logger.Error("Certificate generation fetch failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Failed to connect to HubSpot",
		})
		return
	}

	h.logger.Error("Certificate generation failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"success": false,
		"error":   "Internal server error",
	})
}

// SendCertificateEmail delivers the certificate to the broker and
// records the delivery in the CRM.
func (h *Handler) SendCertificateEmail(w http.ResponseWriter, req *http.Request, body []byte) {
	var payload struct {
		TicketID          string `json:"ticketId"`
		CertificateID     string `json:"certificateId"`
		CertificatePDFURL string `json:"certificatePdfUrl"`
		DriveURL          string `json:"driveUrl"`
		PreviewImageURL   string `json:"previewImageUrl"`

		BrokerEmail   string `json:"brokerEmail"`
		BrokerName    string `json:"brokerName"`
		BrokerCompany string `json:"brokerCompany"`
		SiteAddress   string `json:"siteAddress"`

		SiteID          string `json:"siteId"`
		SystemID        string `json:"systemId"`
		AgreementID     string `json:"agreementId"`
		BrokerID        string `json:"brokerId"`
		BrokerContactID string `json:"brokerContactId"`
		RequestorID     string `json:"requestorId"`
		UnderwriterID   string `json:"underwriterId"`

		ManualRequestorFirstName string `json:"manualRequestorFirstName"`
		ManualRequestorLastName  string `json:"manualRequestorLastName"`
		ManualRequestorEmail     string `json:"manualRequestorEmail"`
		ManualRequestorPhone     string `json:"manualRequestorPhone"`

		ManualBrokerFirstName string `json:"manualBrokerFirstName"`
		ManualBrokerLastName  string `json:"manualBrokerLastName"`
		ManualBrokerEmail     string `json:"manualBrokerEmail"`
		ManualBrokerPhone     string `json:"manualBrokerPhone"`

		ManualUnderwriterName string `json:"manualUnderwriterName"`

		UserName string `json:"userName"`
	}
	if err := decodeJSON(body, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No data provided"})
		return
	}

	if payload.TicketID == "" || payload.BrokerEmail == "" || payload.BrokerName == "" || payload.CertificatePDFURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Missing required fields",
		})
		return
	}

	err := h.certs.SendEmail(req.Context(), &service.SendEmailRequest{
		TicketID:          payload.TicketID,
		CertificateID:     payload.CertificateID,
		CertificatePDFURL: payload.CertificatePDFURL,
		DriveURL:          payload.DriveURL,
		PreviewImageURL:   payload.PreviewImageURL,

		BrokerEmail:   payload.BrokerEmail,
		BrokerName:    payload.BrokerName,
		BrokerCompany: payload.BrokerCompany,
		SiteAddress:   payload.SiteAddress,

		SiteID:          payload.SiteID,
		SystemID:        payload.SystemID,
		AgreementID:     payload.AgreementID,
		BrokerID:        payload.BrokerID,
		BrokerContactID: payload.BrokerContactID,
		RequestorID:     payload.RequestorID,
		UnderwriterID:   payload.UnderwriterID,

		ManualRequestorFirstName: payload.ManualRequestorFirstName,
		ManualRequestorLastName:  payload.ManualRequestorLastName,
		ManualRequestorEmail:     payload.ManualRequestorEmail,
		ManualRequestorPhone:     payload.ManualRequestorPhone,

		ManualBrokerFirstName: payload.ManualBrokerFirstName,
		ManualBrokerLastName:  payload.ManualBrokerLastName,
		ManualBrokerEmail:     payload.ManualBrokerEmail,
		ManualBrokerPhone:     payload.ManualBrokerPhone,

		ManualUnderwriterName: payload.ManualUnderwriterName,

		UserName: payload.UserName,
	})
	if err != nil {
		h.writeSendError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Certificate sent successfully",
	})
}

func (h *Handler) writeSendError(w http.ResponseWriter, err error) {
	var inactiveErr *service.SiteInactiveError
	if errors.As(err, &inactiveErr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   inactiveErr.Error(),
		})
		return
	}

	var mismatchErr *service.DomainMismatchError
	if errors.As(err, &mismatchErr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success":    false,
			"error":      mismatchErr.Error(),
			"escalation": true,
			"details": map[string]string{
				"broker_domain":        mismatchErr.BrokerDomain,
				"contact_email_domain": mismatchErr.EmailDomain,
			},
		})
		return
	}

	h.logger.Error("Certificate email send failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"success": false,
		"error":   "Internal server error",
	})
}

func missingFields(fields map[string]string) []string {
	ordered := []string{"requestorName", "brokerCompany", "brokerContact", "brokerEmail", "agreementId", "systemId", "siteId"}
	var missing []string
	for _, name := range ordered {
		if v, ok := fields[name]; ok && v == "" {
			missing = append(missing, name)
		}
	}
	return missing
}
