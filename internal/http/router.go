// Package httpapi exposes the certificate service over HTTP: the CRM
// card lookup endpoints, certificate generation and delivery, all
// behind HubSpot request-signature validation.
package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router uses the standard library ServeMux.
type Router struct {
	mux       *http.ServeMux
	logger    *zap.Logger
	validator *SignatureValidator
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Register wires every route. API routes answer CORS preflights and
// require a valid HubSpot signature before the handler runs.
func (r *Router) Register(h *Handler) {
	r.validator = h.validator

	r.mux.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.api("/api/get-systems", h.GetSystems)
	r.api("/api/get-agreements", h.GetAgreements)
	r.api("/api/get-brokers", h.GetBrokers)
	r.api("/api/get-underwriters", h.GetUnderwriters)
	r.api("/api/get-broker-contacts", h.GetBrokerContacts)
	r.api("/api/get-requestors", h.GetRequestors)
	r.api("/api/get-certificate-history", h.GetCertificateHistory)
	r.api("/api/generate-certificate", h.GenerateCertificate)
	r.api("/api/send-certificate-email", h.SendCertificateEmail)
}

type apiHandler func(w http.ResponseWriter, req *http.Request, body []byte)

func (r *Router) api(pattern string, handler apiHandler) {
	r.mux.HandleFunc(pattern, func(w http.ResponseWriter, req *http.Request) {
		setCORSHeaders(w)

		switch req.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
			return
		case http.MethodPost:
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		body, err := readBody(req)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Could not read request body"})
			return
		}

		if r.validator != nil && !r.validator.Validate(req, body) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid signature"})
			return
		}

		handler(w, req, body)
	})
}

func setCORSHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}
