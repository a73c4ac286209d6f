// Package service implements the certificate workflows on top of the
// CRM client, the rendering service, the distribution targets and the
// issuance log.
package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"provident-certs/internal/config"
	"provident-certs/internal/hubspot"
)

// CRM is the HubSpot surface the services consume.
type CRM interface {
	GetProperties(ctx context.Context, objectType, id string, properties []string) (map[string]string, error)
	UpdateProperties(ctx context.Context, objectType, id string, properties map[string]string) error
	GetAssociations(ctx context.Context, objectType, id, targetType string) ([]hubspot.Association, error)
	SearchByProperty(ctx context.Context, objectType, property, operator, value string, properties []string, limit int) ([]hubspot.ObjectResult, error)
	SearchCompanyByName(ctx context.Context, name string) (*hubspot.ObjectResult, error)
	CreateCompany(ctx context.Context, properties map[string]string) (string, error)
	UpdateCompany(ctx context.Context, id string, properties map[string]string) error
	CreateContact(ctx context.Context, properties map[string]string) (string, error)
	UpdateTicketProperties(ctx context.Context, ticketID string, properties map[string]string) error
	AssociateRecords(ctx context.Context, fromType, fromID, toType, toID string, customTypeID int) error
	AssociateCustomObjects(ctx context.Context, fromObjectType, fromID, toObjectTypeID, toID string, typeID int) error
	CreateNote(ctx context.Context, body, toObjectID string, assocTypeID int) error
	CreateCompanyNote(ctx context.Context, companyID int64, body string) error
	UploadFile(ctx context.Context, name string, content []byte, contentType, folderPath, access string) (string, error)
}

// Option is one selectable record in the CRM card dropdowns.
type Option struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AgreementOption carries the site-level-fallback marker so the UI
// knows the agreement still needs a system association.
type AgreementOption struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	NeedsAssociation bool   `json:"needsAssociation"`
}

// Contact is a selectable person.
type Contact struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Active-agreement filters.
const (
	activePipelineStage = "88538194"
)

var validAgreementTypes = []string{"Services Agreement", "ULC Fire Agreement"}

// LookupService answers the CRM card's dropdown queries.
type LookupService struct {
	crm    CRM
	cfg    *config.HubSpotConfig
	logger *zap.Logger

	// today is swapped in tests for the initiation-date cutoff.
	today func() time.Time
}

func NewLookupService(crm CRM, cfg *config.HubSpotConfig, logger *zap.Logger) *LookupService {
	return &LookupService{
		crm:    crm,
		cfg:    cfg,
		logger: logger,
		today:  time.Now,
	}
}

// ActiveSystems returns the site's systems with status Active and
// category Security. hadLoadErrors reports associated records that
// could not be read, which the handler surfaces differently from a
// genuinely empty result.
func (s *LookupService) ActiveSystems(ctx context.Context, siteID string) (systems []Option, hadLoadErrors bool, err error) {
	assocs, err := s.crm.GetAssociations(ctx, "company", siteID, s.cfg.SystemTypeID)
	if err != nil {
		return nil, false, fmt.Errorf("get systems for site %s: %w", siteID, err)
	}

	systems = []Option{}
	for _, assoc := range assocs {
		props, err := s.crm.GetProperties(ctx, s.cfg.SystemTypeID, assoc.ToObjectID,
			[]string{"hs_object_id", "name", "system_address", "current_status", "category"})
		if err != nil {
			hadLoadErrors = true
			s.logger.Warn("Failed to load system record",
				zap.String("system_id", assoc.ToObjectID),
				zap.Error(err),
			)
			continue
		}

		if props["current_status"] != "Active" || props["category"] != "Security" {
			continue
		}

		name := props["name"]
		if name == "" {
			name = props["system_address"]
		}
		if name == "" {
			name = "System " + assoc.ToObjectID
		}
		systems = append(systems, Option{ID: assoc.ToObjectID, Name: name})
	}
	return systems, hadLoadErrors, nil
}

// ActiveAgreements returns the system's active agreements. When the
// system has none and a siteID is given, site-level agreements are
// offered instead, flagged NeedsAssociation.
func (s *LookupService) ActiveAgreements(ctx context.Context, systemID, siteID string) (agreements []AgreementOption, usingFallback bool, err error) {
	assocs, err := s.crm.GetAssociations(ctx, s.cfg.SystemTypeID, systemID, s.cfg.AgreementTypeID)
	if err != nil {
		return nil, false, fmt.Errorf("get agreements for system %s: %w", systemID, err)
	}

	if len(assocs) == 0 && siteID != "" {
		siteAssocs, err := s.crm.GetAssociations(ctx, "company", siteID, s.cfg.AgreementTypeID)
		if err == nil {
			assocs = siteAssocs
			usingFallback = true
			s.logger.Debug("Using site-level agreement fallback",
				zap.String("site_id", siteID),
				zap.Int("count", len(assocs)),
			)
		}
	}

	today := s.today().Format("2006-01-02")

	agreements = []AgreementOption{}
	for _, assoc := range assocs {
		props, err := s.crm.GetProperties(ctx, s.cfg.AgreementTypeID, assoc.ToObjectID,
			[]string{"hs_object_id", "name", "hs_pipeline_stage", "agreement_type", "agreement_service_initiation_date"})
		if err != nil {
			s.logger.Warn("Failed to load agreement record",
				zap.String("agreement_id", assoc.ToObjectID),
				zap.Error(err),
			)
			continue
		}

		if props["hs_pipeline_stage"] != activePipelineStage {
			continue
		}
		if !contains(validAgreementTypes, props["agreement_type"]) {
			continue
		}
		if initDate := props["agreement_service_initiation_date"]; initDate != "" {
			day, ok := parseDateOnly(initDate)
			if !ok || day > today {
				continue
			}
		}

		name := props["name"]
		if name == "" {
			name = "Agreement " + assoc.ToObjectID
		}
		agreements = append(agreements, AgreementOption{
			ID:               assoc.ToObjectID,
			Name:             name,
			NeedsAssociation: usingFallback,
		})
	}
	return agreements, usingFallback, nil
}

// Brokers returns every company typed as an insurance broker.
func (s *LookupService) Brokers(ctx context.Context) ([]Option, error) {
	return s.companiesByType(ctx, "Insurance Broker", "Broker")
}

// Underwriters returns every company typed as an insurance underwriter.
func (s *LookupService) Underwriters(ctx context.Context) ([]Option, error) {
	return s.companiesByType(ctx, "Insurance Underwriter", "Underwriter")
}

func (s *LookupService) companiesByType(ctx context.Context, companyType, fallbackLabel string) ([]Option, error) {
	results, err := s.crm.SearchByProperty(ctx, "companies", "company_type", "CONTAINS_TOKEN", companyType,
		[]string{"name"}, 100)
	if err != nil {
		return nil, fmt.Errorf("search %s companies: %w", companyType, err)
	}

	out := make([]Option, 0, len(results))
	for _, r := range results {
		name := r.Properties["name"]
		if name == "" {
			name = fallbackLabel + " " + r.ID
		}
		out = append(out, Option{ID: r.ID, Name: name})
	}
	return out, nil
}

// BrokerContacts returns the contacts associated to a broker company.
func (s *LookupService) BrokerContacts(ctx context.Context, brokerID string) ([]Contact, error) {
	assocs, err := s.crm.GetAssociations(ctx, "company", brokerID, "contact")
	if err != nil {
		return nil, fmt.Errorf("get contacts for broker %s: %w", brokerID, err)
	}

	contacts := []Contact{}
	for _, assoc := range assocs {
		props, err := s.crm.GetProperties(ctx, "contacts", assoc.ToObjectID,
			[]string{"firstname", "lastname", "email", "phone"})
		if err != nil {
			s.logger.Warn("Failed to load broker contact",
				zap.String("contact_id", assoc.ToObjectID),
				zap.Error(err),
			)
			continue
		}
		contacts = append(contacts, Contact{
			ID:    assoc.ToObjectID,
			Name:  contactDisplayName(props, assoc.ToObjectID),
			Email: props["email"],
			Phone: props["phone"],
		})
	}
	return contacts, nil
}

// AuthorizedRequestors returns the contacts allowed to request a
// certificate for the site: site contacts carrying a site-admin
// association label, plus agreement contacts carrying the signer label.
// There is no fallback to the full contact list.
func (s *LookupService) AuthorizedRequestors(ctx context.Context, siteID, agreementID string) (requestors []Contact, hadLoadErrors bool, err error) {
	authorized := map[string]bool{}

	siteAssocs, err := s.crm.GetAssociations(ctx, "company", siteID, "contact")
	if err != nil {
		return nil, false, fmt.Errorf("get contacts for site %s: %w", siteID, err)
	}
	for _, assoc := range siteAssocs {
		if containsAnyInt(assoc.TypeIDs, s.cfg.SiteAdminTypeIDs) {
			authorized[assoc.ToObjectID] = true
		}
	}

	if agreementID != "" {
		agreementAssocs, err := s.crm.GetAssociations(ctx, s.cfg.AgreementTypeID, agreementID, "contact")
		if err != nil {
			s.logger.Warn("Failed to load agreement signer associations",
				zap.String("agreement_id", agreementID),
				zap.Error(err),
			)
		} else {
			for _, assoc := range agreementAssocs {
				if containsInt(assoc.TypeIDs, s.cfg.SignerTypeID) {
					authorized[assoc.ToObjectID] = true
				}
			}
		}
	}

	if len(authorized) == 0 {
		return []Contact{}, false, nil
	}

	requestors = []Contact{}
	for contactID := range authorized {
		props, err := s.crm.GetProperties(ctx, "contacts", contactID,
			[]string{"firstname", "lastname", "email"})
		if err != nil {
			hadLoadErrors = true
			s.logger.Warn("Failed to load requestor contact",
				zap.String("contact_id", contactID),
				zap.Error(err),
			)
			continue
		}
		requestors = append(requestors, Contact{
			ID:    contactID,
			Name:  contactDisplayName(props, contactID),
			Email: props["email"],
		})
	}

	// The authorized set is a map, so order the dropdown explicitly.
	sort.Slice(requestors, func(i, j int) bool {
		if requestors[i].Name != requestors[j].Name {
			return requestors[i].Name < requestors[j].Name
		}
		return requestors[i].ID < requestors[j].ID
	})
	return requestors, hadLoadErrors, nil
}

func contactDisplayName(props map[string]string, id string) string {
	name := strings.TrimSpace(props["firstname"] + " " + props["lastname"])
	if name != "" {
		return name
	}
	if props["email"] != "" {
		return props["email"]
	}
	return "Contact " + id
}

// parseDateOnly reduces an ISO timestamp or plain date to YYYY-MM-DD.
func parseDateOnly(s string) (string, bool) {
	if len(s) >= 10 {
		candidate := s[:10]
		if _, err := time.Parse("2006-01-02", candidate); err == nil {
			return candidate, true
		}
	}
	return "", false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsInt(list []int, v int) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsAnyInt(list, wanted []int) bool {
	for _, v := range wanted {
		if containsInt(list, v) {
			return true
		}
	}
	return false
}
