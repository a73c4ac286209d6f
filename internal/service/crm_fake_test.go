package service

import (
	"context"
	"fmt"

	"provident-certs/internal/hubspot"
)

// fakeCRM is the in-memory CRM used across the service tests. Objects
// are keyed "{objectType}/{id}" and association edges
// "{objectType}/{id}/{targetType}". Per-call hooks override behavior
// where a test needs a failure.
type fakeCRM struct {
	objects      map[string]map[string]string
	associations map[string][]hubspot.Association
	searches     map[string][]hubspot.ObjectResult

	getErr    map[string]error
	assocErr  map[string]error
	searchErr error

	createdCompanies map[string]map[string]string
	createdContacts  map[string]map[string]string
	companyUpdates   map[string]map[string]string
	ticketUpdates    map[string]map[string]string
	notes            []fakeNote
	companyNotes     []fakeCompanyNote
	recordAssocs     []fakeAssoc
	customAssocs     []fakeAssoc
	uploads          []fakeUpload

	nextID int

	createCompanyErr error
	createContactErr error
	updateTicketErr  error
	assocRecordsErr  error
	customAssocErr   error
	noteErr          error
	companyNoteErr   error
	uploadErr        error
	uploadURL        string
}

type fakeNote struct {
	Body        string
	ToObjectID  string
	AssocTypeID int
}

type fakeCompanyNote struct {
	CompanyID int64
	Body      string
}

type fakeAssoc struct {
	FromType string
	FromID   string
	ToType   string
	ToID     string
	TypeID   int
}

type fakeUpload struct {
	Name       string
	Content    []byte
	FolderPath string
	Access     string
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{
		objects:          map[string]map[string]string{},
		associations:     map[string][]hubspot.Association{},
		searches:         map[string][]hubspot.ObjectResult{},
		getErr:           map[string]error{},
		assocErr:         map[string]error{},
		createdCompanies: map[string]map[string]string{},
		createdContacts:  map[string]map[string]string{},
		companyUpdates:   map[string]map[string]string{},
		ticketUpdates:    map[string]map[string]string{},
		nextID:           1000,
	}
}

func (f *fakeCRM) GetProperties(_ context.Context, objectType, id string, _ []string) (map[string]string, error) {
	key := objectType + "/" + id
	if err := f.getErr[key]; err != nil {
		return nil, err
	}
	if props, ok := f.objects[key]; ok {
		return props, nil
	}
	return map[string]string{}, nil
}

func (f *fakeCRM) UpdateProperties(_ context.Context, objectType, id string, properties map[string]string) error {
	key := objectType + "/" + id
	if f.objects[key] == nil {
		f.objects[key] = map[string]string{}
	}
	for k, v := range properties {
		f.objects[key][k] = v
	}
	return nil
}

func (f *fakeCRM) GetAssociations(_ context.Context, objectType, id, targetType string) ([]hubspot.Association, error) {
	key := objectType + "/" + id + "/" + targetType
	if err := f.assocErr[key]; err != nil {
		return nil, err
	}
	return f.associations[key], nil
}

func (f *fakeCRM) SearchByProperty(_ context.Context, objectType, property, _, value string, _ []string, _ int) ([]hubspot.ObjectResult, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searches[objectType+"/"+property+"/"+value], nil
}

func (f *fakeCRM) SearchCompanyByName(ctx context.Context, name string) (*hubspot.ObjectResult, error) {
	results, err := f.SearchByProperty(ctx, "companies", "name", "EQ", name, nil, 1)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

func (f *fakeCRM) CreateCompany(_ context.Context, properties map[string]string) (string, error) {
	if f.createCompanyErr != nil {
		return "", f.createCompanyErr
	}
	f.nextID++
	id := fmt.Sprintf("%d", f.nextID)
	f.createdCompanies[id] = properties
	return id, nil
}

func (f *fakeCRM) UpdateCompany(_ context.Context, id string, properties map[string]string) error {
	f.companyUpdates[id] = properties
	return nil
}

func (f *fakeCRM) CreateContact(_ context.Context, properties map[string]string) (string, error) {
	if f.createContactErr != nil {
		return "", f.createContactErr
	}
	f.nextID++
	id := fmt.Sprintf("%d", f.nextID)
	f.createdContacts[id] = properties
	return id, nil
}

func (f *fakeCRM) UpdateTicketProperties(_ context.Context, ticketID string, properties map[string]string) error {
	if f.updateTicketErr != nil {
		return f.updateTicketErr
	}
	f.ticketUpdates[ticketID] = properties
	return nil
}

func (f *fakeCRM) AssociateRecords(_ context.Context, fromType, fromID, toType, toID string, customTypeID int) error {
	if f.assocRecordsErr != nil {
		return f.assocRecordsErr
	}
	f.recordAssocs = append(f.recordAssocs, fakeAssoc{fromType, fromID, toType, toID, customTypeID})
	return nil
}

func (f *fakeCRM) AssociateCustomObjects(_ context.Context, fromObjectType, fromID, toObjectTypeID, toID string, typeID int) error {
	if f.customAssocErr != nil {
		return f.customAssocErr
	}
	f.customAssocs = append(f.customAssocs, fakeAssoc{fromObjectType, fromID, toObjectTypeID, toID, typeID})
	return nil
}

func (f *fakeCRM) CreateNote(_ context.Context, body, toObjectID string, assocTypeID int) error {
	if f.noteErr != nil {
		return f.noteErr
	}
	f.notes = append(f.notes, fakeNote{Body: body, ToObjectID: toObjectID, AssocTypeID: assocTypeID})
	return nil
}

func (f *fakeCRM) CreateCompanyNote(_ context.Context, companyID int64, body string) error {
	if f.companyNoteErr != nil {
		return f.companyNoteErr
	}
	f.companyNotes = append(f.companyNotes, fakeCompanyNote{CompanyID: companyID, Body: body})
	return nil
}

func (f *fakeCRM) UploadFile(_ context.Context, name string, content []byte, _, folderPath, access string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads = append(f.uploads, fakeUpload{Name: name, Content: content, FolderPath: folderPath, Access: access})
	if f.uploadURL != "" {
		return f.uploadURL, nil
	}
	return "https://files.hubspot.example/" + name, nil
}
