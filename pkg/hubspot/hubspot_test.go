package hubspot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	contractx "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/contract"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

type fakeHubSpot struct {
	mu       sync.Mutex
	requests []recordedRequest
	fail     map[string]int
}

func (f *fakeHubSpot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &body)
	}

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization"), Body: body})
	status, failing := f.fail[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if failing {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"status":"error","message":"Property values were not valid"}`)
		return
	}

	switch r.URL.Path {
	case "/crm/v3/objects/notes":
		_, _ = io.WriteString(w, `{"id":"note-1"}`)
	case "/crm/v3/objects/deals":
		_, _ = io.WriteString(w, `{"id":"deal-1"}`)
	case "/crm/v3/objects/contacts/search":
		if body["after"] == nil {
			_, _ = io.WriteString(w, `{"total":3,"results":[
				{"id":"201","properties":{"firstname":"Sam","phone":"+61400000001","hs_lead_status":"NEW"}},
				{"id":"202","properties":{"firstname":"Jo","phone":"","hs_lead_status":"OPEN"}}
			],"paging":{"next":{"after":"2"}}}`)
			return
		}
		_, _ = io.WriteString(w, `{"total":3,"results":[
			{"id":"203","properties":{"firstname":"Lee","email":"lee@acme.test","phone":"+61400000003","hs_lead_status":"ATTEMPTED_TO_CONTACT"}}
		]}`)
	default:
		_, _ = io.WriteString(w, `{}`)
	}
}

func newTestClient(t *testing.T, fake *fakeHubSpot) *Client {
	t.Helper()

	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client, err := NewClient(
		Config{AccessToken: "pat-token", BaseURL: server.URL},
		WithHTTPClient(server.Client()),
		WithClock(func() time.Time { return time.UnixMilli(1717200000000) }),
	)
	require.NoError(t, err)
	return client
}

func TestSetLeadStatus(t *testing.T) {
	t.Parallel()

	fake := &fakeHubSpot{}
	client := newTestClient(t, fake)

	require.NoError(t, client.SetLeadStatus(context.Background(), "101", contractx.LeadStatusOpenDeal))
	require.Len(t, fake.requests, 1)

	req := fake.requests[0]
	assert.Equal(t, http.MethodPatch, req.Method)
	assert.Equal(t, "/crm/v3/objects/contacts/101", req.Path)
	assert.Equal(t, "Bearer pat-token", req.Auth)
	assert.Equal(t, map[string]any{"hs_lead_status": "OPEN_DEAL"}, req.Body["properties"])
}

func TestSyncCallOutcomeCreatesAndAssociatesNote(t *testing.T) {
	t.Parallel()

	fake := &fakeHubSpot{}
	client := newTestClient(t, fake)

	fields := []contractx.NoteField{
		{Label: "Manager Name", Value: "Sam"},
		{Label: "Interested", Value: "true"},
	}
	require.NoError(t, client.SyncCallOutcome(context.Background(), "101", fields))
	require.Len(t, fake.requests, 2)

	create := fake.requests[0]
	assert.Equal(t, "/crm/v3/objects/notes", create.Path)
	props := create.Body["properties"].(map[string]any)
	assert.Equal(t, "Manager Name: Sam\n\nInterested: true", props["hs_note_body"])
	assert.Equal(t, float64(1717200000000), props["hs_timestamp"])

	assoc := fake.requests[1]
	assert.Equal(t, http.MethodPut, assoc.Method)
	assert.Equal(t, "/crm/v4/objects/notes/note-1/associations/default/contacts/101", assoc.Path)
}

func TestCreateDeal(t *testing.T) {
	t.Parallel()

	fake := &fakeHubSpot{}
	client := newTestClient(t, fake)

	require.NoError(t, client.CreateDeal(context.Background(), "101"))
	require.Len(t, fake.requests, 2)

	props := fake.requests[0].Body["properties"].(map[string]any)
	assert.Equal(t, "Novated Leasing Deal", props["dealname"])
	assert.Equal(t, "appointmentscheduled", props["dealstage"])
	assert.Equal(t, "default", props["pipeline"])
	assert.Equal(t, "/crm/v4/objects/deals/deal-1/associations/default/contacts/101", fake.requests[1].Path)
}

func TestErrorsWrapCollaborator(t *testing.T) {
	t.Parallel()

	fake := &fakeHubSpot{fail: map[string]int{"POST /crm/v3/objects/deals": http.StatusBadRequest}}
	client := newTestClient(t, fake)

	err := client.CreateDeal(context.Background(), "101")
	require.Error(t, err)
	assert.True(t, errors.Is(err, contractx.ErrCollaborator))
	assert.Contains(t, err.Error(), "Property values were not valid")
	assert.Len(t, fake.requests, 1, "association must not run after a failed create")
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{})
	assert.Error(t, err)

	c, err := NewClient(Config{AccessToken: "t"})
	require.NoError(t, err)
	assert.Equal(t, "https://api.hubapi.com", c.baseURL)
}

func TestSearchContactsByLeadStatusPages(t *testing.T) {
	t.Parallel()

	fake := &fakeHubSpot{}
	client := newTestClient(t, fake)

	statuses := []contractx.LeadStatus{contractx.LeadStatusNew, contractx.LeadStatusOpen, contractx.LeadStatusAttemptedToContact}
	contacts, err := client.SearchContactsByLeadStatus(context.Background(), statuses, 0)
	require.NoError(t, err)
	require.Len(t, contacts, 3)
	require.Len(t, fake.requests, 2)

	first := fake.requests[0]
	assert.Equal(t, http.MethodPost, first.Method)
	assert.Equal(t, "/crm/v3/objects/contacts/search", first.Path)
	filter := first.Body["filterGroups"].([]any)[0].(map[string]any)["filters"].([]any)[0].(map[string]any)
	assert.Equal(t, "hs_lead_status", filter["propertyName"])
	assert.Equal(t, "IN", filter["operator"])
	assert.Equal(t, []any{"NEW", "OPEN", "ATTEMPTED_TO_CONTACT"}, filter["values"])
	assert.Equal(t, "2", fake.requests[1].Body["after"])

	assert.Equal(t, contractx.Contact{ID: "201", FirstName: "Sam", Phone: "+61400000001", LeadStatus: contractx.LeadStatusNew}, contacts[0])
	assert.Empty(t, contacts[1].Phone)
	assert.Equal(t, "lee@acme.test", contacts[2].Email)
}

func TestSearchContactsByLeadStatusLimit(t *testing.T) {
	t.Parallel()

	fake := &fakeHubSpot{}
	client := newTestClient(t, fake)

	contacts, err := client.SearchContactsByLeadStatus(context.Background(), []contractx.LeadStatus{contractx.LeadStatusNew}, 2)
	require.NoError(t, err)
	assert.Len(t, contacts, 2)
	require.Len(t, fake.requests, 1)
	assert.Equal(t, float64(2), fake.requests[0].Body["limit"])

	_, err = client.SearchContactsByLeadStatus(context.Background(), nil, 0)
	assert.True(t, errors.Is(err, contractx.ErrValidation))
}
