package engine

import "context"

// CRM is the subset of the HubSpot client the engine consumes. Property
// bags come and go as flat string maps; object types are the portal's
// type identifiers ("contacts", "companies", or custom "2-..." ids).
type CRM interface {
	GetProperties(ctx context.Context, objectType, id string, properties []string) (map[string]string, error)
	UpdateProperties(ctx context.Context, objectType, id string, properties map[string]string) error
	SearchByAssociation(ctx context.Context, objectType, assocObjectType, assocID string, properties []string, limit int) ([]map[string]string, error)
	GetAssociatedIDs(ctx context.Context, objectType, id, targetType string) ([]string, error)
}

// statusError matches client errors that carry an HTTP status: the CRM
// answered, it just didn't succeed. Fetching tolerates those (the bag
// stays empty and validation decides); transport errors do not.
type statusError interface {
	HTTPStatus() int
}
