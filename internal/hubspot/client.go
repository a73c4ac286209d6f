// Package hubspot is the CRM client: property reads/writes, searches,
// v4 associations, notes, ticket updates and file uploads against the
// HubSpot REST APIs.
package hubspot

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Client wraps the HubSpot v3/v4 CRM APIs. All calls carry the resty
// client's bounded timeout and the private app access token.
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

func NewClient(baseURL, accessToken string, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetAuthToken(accessToken).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		logger:     logger,
	}
}

type objectResponse struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

type searchResponse struct {
	Total   int              `json:"total"`
	Results []objectResponse `json:"results"`
}

// Association is one v4 association edge, with the (portal-specific)
// label type ids attached to it.
type Association struct {
	ToObjectID string
	TypeIDs    []int
}

type associationsResponse struct {
	Results []struct {
		ToObjectID       json.Number `json:"toObjectId"`
		AssociationTypes []struct {
			Category string `json:"category"`
			TypeID   int    `json:"typeId"`
			Label    string `json:"label"`
		} `json:"associationTypes"`
	} `json:"results"`
}

type filter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

type searchRequest struct {
	FilterGroups []struct {
		Filters []filter `json:"filters"`
	} `json:"filterGroups"`
	Properties []string `json:"properties"`
	Limit      int      `json:"limit"`
}

func newSearchRequest(f filter, properties []string, limit int) searchRequest {
	req := searchRequest{Properties: properties, Limit: limit}
	req.FilterGroups = []struct {
		Filters []filter `json:"filters"`
	}{{Filters: []filter{f}}}
	return req
}

// GetProperties reads the named properties of one object.
func (c *Client) GetProperties(ctx context.Context, objectType, id string, properties []string) (map[string]string, error) {
	var result objectResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("properties", strings.Join(properties, ",")).
		SetResult(&result).
		Get(fmt.Sprintf("/crm/v3/objects/%s/%s", objectType, id))
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", objectType, id, err)
	}
	if resp.IsError() {
		return nil, &StatusError{Operation: "get " + objectType, StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	if result.Properties == nil {
		result.Properties = map[string]string{}
	}
	return result.Properties, nil
}

// UpdateProperties patches properties on one object.
func (c *Client) UpdateProperties(ctx context.Context, objectType, id string, properties map[string]string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]any{"properties": properties}).
		Patch(fmt.Sprintf("/crm/v3/objects/%s/%s", objectType, id))
	if err != nil {
		return fmt.Errorf("update %s %s: %w", objectType, id, err)
	}
	if resp.IsError() {
		return &StatusError{Operation: "update " + objectType, StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// SearchByAssociation finds objects associated to assocID, e.g. the
// devices belonging to a security system.
func (c *Client) SearchByAssociation(ctx context.Context, objectType, assocObjectType, assocID string, properties []string, limit int) ([]map[string]string, error) {
	body := newSearchRequest(filter{
		PropertyName: "associations." + assocObjectType,
		Operator:     "EQ",
		Value:        assocID,
	}, properties, limit)

	var result searchResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post(fmt.Sprintf("/crm/v3/objects/%s/search", objectType))
	if err != nil {
		return nil, fmt.Errorf("search %s by association: %w", objectType, err)
	}
	if resp.IsError() {
		return nil, &StatusError{Operation: "search " + objectType, StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	out := make([]map[string]string, 0, len(result.Results))
	for _, r := range result.Results {
		props := r.Properties
		if props == nil {
			props = map[string]string{}
		}
		out = append(out, props)
	}
	return out, nil
}

// SearchByProperty finds objects by a single property filter.
func (c *Client) SearchByProperty(ctx context.Context, objectType, property, operator, value string, properties []string, limit int) ([]ObjectResult, error) {
	body := newSearchRequest(filter{PropertyName: property, Operator: operator, Value: value}, properties, limit)

	var result searchResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post(fmt.Sprintf("/crm/v3/objects/%s/search", objectType))
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", objectType, err)
	}
	if resp.IsError() {
		return nil, &StatusError{Operation: "search " + objectType, StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	out := make([]ObjectResult, 0, len(result.Results))
	for _, r := range result.Results {
		out = append(out, ObjectResult{ID: r.ID, Properties: orEmpty(r.Properties)})
	}
	return out, nil
}

// ObjectResult pairs an object id with its property bag.
type ObjectResult struct {
	ID         string
	Properties map[string]string
}

// GetAssociations lists the association edges from one object to a
// target type, including label type ids.
func (c *Client) GetAssociations(ctx context.Context, objectType, id, targetType string) ([]Association, error) {
	var result associationsResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&result).
		Get(fmt.Sprintf("/crm/v4/objects/%s/%s/associations/%s", objectType, id, targetType))
	if err != nil {
		return nil, fmt.Errorf("get associations %s %s -> %s: %w", objectType, id, targetType, err)
	}
	if resp.IsError() {
		return nil, &StatusError{Operation: "get associations", StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	out := make([]Association, 0, len(result.Results))
	for _, r := range result.Results {
		assoc := Association{ToObjectID: r.ToObjectID.String()}
		for _, t := range r.AssociationTypes {
			assoc.TypeIDs = append(assoc.TypeIDs, t.TypeID)
		}
		out = append(out, assoc)
	}
	return out, nil
}

// GetAssociatedIDs is GetAssociations reduced to the target ids, which
// is all the certificate engine needs.
func (c *Client) GetAssociatedIDs(ctx context.Context, objectType, id, targetType string) ([]string, error) {
	assocs, err := c.GetAssociations(ctx, objectType, id, targetType)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(assocs))
	for _, a := range assocs {
		ids = append(ids, a.ToObjectID)
	}
	return ids, nil
}

// SearchCompanyByName finds a company by exact name match.
func (c *Client) SearchCompanyByName(ctx context.Context, name string) (*ObjectResult, error) {
	results, err := c.SearchByProperty(ctx, "companies", "name", "EQ", name,
		[]string{"name", "domain", "company_type"}, 1)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

// CreateCompany creates a company and returns its id.
func (c *Client) CreateCompany(ctx context.Context, properties map[string]string) (string, error) {
	return c.createObject(ctx, "companies", properties)
}

// UpdateCompany patches company properties.
func (c *Client) UpdateCompany(ctx context.Context, id string, properties map[string]string) error {
	return c.UpdateProperties(ctx, "companies", id, properties)
}

// CreateContact creates a contact and returns its id.
func (c *Client) CreateContact(ctx context.Context, properties map[string]string) (string, error) {
	return c.createObject(ctx, "contacts", properties)
}

func (c *Client) createObject(ctx context.Context, objectType string, properties map[string]string) (string, error) {
	var result objectResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]any{"properties": properties}).
		SetResult(&result).
		Post(fmt.Sprintf("/crm/v3/objects/%s", objectType))
	if err != nil {
		return "", fmt.Errorf("create %s: %w", objectType, err)
	}
	if resp.IsError() {
		return "", &StatusError{Operation: "create " + objectType, StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	c.logger.Debug("Created CRM object",
		zap.String("object_type", objectType),
		zap.String("object_id", result.ID),
	)
	return result.ID, nil
}

// UpdateTicketProperties patches ticket properties.
func (c *Client) UpdateTicketProperties(ctx context.Context, ticketID string, properties map[string]string) error {
	return c.UpdateProperties(ctx, "tickets", ticketID, properties)
}

// AssociateRecords links two standard objects with the v4 PUT endpoint.
// A zero customTypeID uses the HubSpot-defined default for the pair.
func (c *Client) AssociateRecords(ctx context.Context, fromType, fromID, toType, toID string, customTypeID int) error {
	category := "USER_DEFINED"
	typeID := customTypeID
	if customTypeID == 0 {
		category = "HUBSPOT_DEFINED"
		typeID = defaultAssociationTypeID(fromType, toType)
	}

	body := []map[string]any{{
		"associationCategory": category,
		"associationTypeId":   typeID,
	}}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(body).
		Put(fmt.Sprintf("/crm/v4/objects/%s/%s/associations/%s/%s", fromType, fromID, toType, toID))
	if err != nil {
		return fmt.Errorf("associate %s:%s -> %s:%s: %w", fromType, fromID, toType, toID, err)
	}
	if resp.IsError() {
		return &StatusError{Operation: "associate records", StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// AssociateCustomObjects links a standard object to a custom object via
// the v4 batch endpoint, which is the only one that accepts full type
// ids on the target side.
func (c *Client) AssociateCustomObjects(ctx context.Context, fromObjectType, fromID, toObjectTypeID, toID string, typeID int) error {
	body := map[string]any{
		"inputs": []map[string]any{{
			"from": map[string]string{"id": fromID},
			"to":   map[string]string{"id": toID},
			"types": []map[string]any{{
				"associationCategory": "USER_DEFINED",
				"associationTypeId":   typeID,
			}},
		}},
	}

	var result struct {
		Errors []json.RawMessage `json:"errors"`
	}
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post(fmt.Sprintf("/crm/v4/associations/%s/%s/batch/create", fromObjectType, toObjectTypeID))
	if err != nil {
		return fmt.Errorf("associate custom objects: %w", err)
	}
	if resp.IsError() {
		return &StatusError{Operation: "associate custom objects", StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("associate custom objects: batch errors: %s", result.Errors[0])
	}
	return nil
}

// CreateNote creates a note associated to an object. Association type
// 228 is note→ticket per the v3 API.
func (c *Client) CreateNote(ctx context.Context, body, toObjectID string, assocTypeID int) error {
	payload := map[string]any{
		"properties": map[string]string{
			"hs_timestamp": strconv.FormatInt(time.Now().UnixMilli(), 10),
			"hs_note_body": body,
		},
		"associations": []map[string]any{{
			"to": map[string]string{"id": toObjectID},
			"types": []map[string]any{{
				"associationCategory": "HUBSPOT_DEFINED",
				"associationTypeId":   assocTypeID,
			}},
		}},
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		Post("/crm/v3/objects/notes")
	if err != nil {
		return fmt.Errorf("create note: %w", err)
	}
	if resp.IsError() {
		return &StatusError{Operation: "create note", StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// NoteToTicketAssociationTypeID is the HubSpot-defined note→ticket type.
const NoteToTicketAssociationTypeID = 228

// CreateCompanyNote attaches a note to a company through the legacy
// engagements API, which the notes object API does not cover.
func (c *Client) CreateCompanyNote(ctx context.Context, companyID int64, body string) error {
	payload := map[string]any{
		"engagement": map[string]any{
			"active":    true,
			"type":      "NOTE",
			"timestamp": time.Now().UnixMilli(),
		},
		"associations": map[string]any{"companyIds": []int64{companyID}},
		"metadata":     map[string]any{"body": body},
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		Post("/engagements/v1/engagements")
	if err != nil {
		return fmt.Errorf("create company note: %w", err)
	}
	if resp.IsError() {
		return &StatusError{Operation: "create company note", StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// UploadFile pushes a file into HubSpot Files and returns its URL.
// Certificates upload as PUBLIC_NOT_INDEXABLE so the links work without
// the PDFs being crawlable.
func (c *Client) UploadFile(ctx context.Context, name string, content []byte, contentType, folderPath, access string) (string, error) {
	options, err := json.Marshal(map[string]string{"access": access})
	if err != nil {
		return "", err
	}

	var result struct {
		URL string `json:"url"`
	}
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFileReader("file", name, strings.NewReader(string(content))).
		SetFormData(map[string]string{
			"options":    string(options),
			"folderPath": folderPath,
		}).
		SetResult(&result).
		Post("/files/v3/files")
	if err != nil {
		return "", fmt.Errorf("upload file %s: %w", name, err)
	}
	if resp.IsError() {
		return "", &StatusError{Operation: "upload file", StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	if result.URL == "" {
		return "", fmt.Errorf("upload file %s: no url in response", name)
	}

	c.logger.Info("Uploaded file to HubSpot",
		zap.String("file_name", name),
		zap.String("url", result.URL),
	)
	return result.URL, nil
}

// Default HubSpot-defined association type ids for standard object
// pairs (v4 API documentation).
var defaultAssociationTypes = map[[2]string]int{
	{"contact", "company"}: 1,
	{"contact", "ticket"}:  15,
	{"contact", "deal"}:    4,
	{"company", "contact"}: 2,
	{"company", "ticket"}:  25,
	{"company", "deal"}:    6,
	{"deal", "contact"}:    3,
	{"deal", "company"}:    5,
	{"deal", "ticket"}:     27,
	{"ticket", "contact"}:  16,
	{"ticket", "company"}:  26,
	{"ticket", "deal"}:     28,
}

func orEmpty(props map[string]string) map[string]string {
	if props == nil {
		return map[string]string{}
	}
	return props
}

func defaultAssociationTypeID(fromType, toType string) int {
	if id, ok := defaultAssociationTypes[[2]string{fromType, toType}]; ok {
		return id
	}
	return 1
}
