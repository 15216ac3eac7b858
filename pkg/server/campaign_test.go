package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	contractx "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/contract"
)

type fakeContacts struct {
	contacts []contractx.Contact
	err      error

	mu       sync.Mutex
	statuses []contractx.LeadStatus
}

func (f *fakeContacts) SearchContactsByLeadStatus(ctx context.Context, statuses []contractx.LeadStatus, limit int) ([]contractx.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = statuses
	return f.contacts, f.err
}

type fakePlacer struct {
	failFor map[string]bool

	mu    sync.Mutex
	calls []contractx.OutboundCall
}

func (f *fakePlacer) PlaceCall(ctx context.Context, call contractx.OutboundCall) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.failFor[call.ContactID] {
		return "", errors.New("invalid number")
	}
	return "CA-" + call.ContactID, nil
}

func campaignContacts() []contractx.Contact {
	return []contractx.Contact{
		{ID: "201", Phone: "+61400000001", LeadStatus: contractx.LeadStatusNew},
		{ID: "202", LeadStatus: contractx.LeadStatusOpen},
		{ID: "203", Phone: "+61400000003", LeadStatus: contractx.LeadStatusOpen},
		{ID: "204", Phone: "+61400000004", LeadStatus: contractx.LeadStatusAttemptedToContact},
	}
}

func startCampaign(t *testing.T, baseURL, body string) CampaignResult {
	t.Helper()

	resp, err := http.Post(baseURL+"/api/campaign/start", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result CampaignResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

func TestCampaignDialsContactsWithPhones(t *testing.T) {
	t.Parallel()

	crm := &fakeCRM{}
	contacts := &fakeContacts{contacts: campaignContacts()}
	placer := &fakePlacer{failFor: map[string]bool{"203": true}}
	srv, ts, _ := newTestServer(t, newFakeCall(), crm, WithCampaign(contacts, placer))

	result := startCampaign(t, ts.URL, `{}`)

	assert.True(t, result.Success)
	assert.Equal(t, 4, result.TotalContacts)
	assert.Equal(t, 3, result.ContactsWithPhone)
	assert.Equal(t, 2, result.CallsInitiated)
	assert.Equal(t, 1, result.CallsFailed)
	assert.True(t, result.CRMUpdated)
	assert.Equal(t, defaultCampaignStatuses, contacts.statuses)
	require.Len(t, result.Results, 3)
	assert.Equal(t, DialResult{ContactID: "201", Phone: "+61400000001", CallSID: "CA-201", Status: dialInitiated}, result.Results[0])
	assert.Equal(t, dialFailed, result.Results[1].Status)
	assert.Equal(t, "invalid number", result.Results[1].Error)

	assert.Equal(t, []contractx.LeadStatus{contractx.LeadStatusAttemptedToContact, contractx.LeadStatusAttemptedToContact}, crm.statuses)

	rec, ok := srv.Calls().Get("CA-204")
	require.True(t, ok)
	assert.Equal(t, "204", rec.ContactID)
	assert.Equal(t, "twilio", rec.Transport)
	assert.Equal(t, dialInitiated, rec.DialStatus)
	assert.Equal(t, string(contractx.LeadStatusAttemptedToContact), rec.LeadStatus)
}

func TestCampaignHonorsRequestOptions(t *testing.T) {
	t.Parallel()

	crm := &fakeCRM{}
	contacts := &fakeContacts{contacts: campaignContacts()}
	placer := &fakePlacer{}
	_, ts, _ := newTestServer(t, newFakeCall(), crm, WithCampaign(contacts, placer))

	result := startCampaign(t, ts.URL, `{"lead_statuses":["OPEN"],"update_status_after_call":false,"max_contacts":1}`)

	assert.Equal(t, []contractx.LeadStatus{contractx.LeadStatusOpen}, contacts.statuses)
	assert.Equal(t, 1, result.CallsInitiated)
	assert.False(t, result.CRMUpdated)
	require.Len(t, placer.calls, 1)
	assert.Equal(t, contractx.OutboundCall{To: "+61400000001", ContactID: "201", LeadStatus: contractx.LeadStatusNew}, placer.calls[0])
	assert.Empty(t, crm.statuses)
}

func TestCampaignWithoutDialableContacts(t *testing.T) {
	t.Parallel()

	placer := &fakePlacer{}
	_, ts, _ := newTestServer(t, newFakeCall(), nil, WithCampaign(&fakeContacts{}, placer))
	result := startCampaign(t, ts.URL, "")
	assert.False(t, result.Success)
	assert.Equal(t, "No contacts found with specified lead statuses", result.Message)

	_, ts, _ = newTestServer(t, newFakeCall(), nil, WithCampaign(&fakeContacts{contacts: []contractx.Contact{{ID: "9"}}}, placer))
	result = startCampaign(t, ts.URL, "")
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.TotalContacts)
	assert.Zero(t, result.ContactsWithPhone)
	assert.Empty(t, placer.calls)
}

func TestCampaignSearchFailure(t *testing.T) {
	t.Parallel()

	contacts := &fakeContacts{err: errors.New("hubspot down")}
	_, ts, _ := newTestServer(t, newFakeCall(), nil, WithCampaign(contacts, &fakePlacer{}))

	resp, err := http.Post(ts.URL+"/api/campaign/start", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/campaign/start", "application/json", strings.NewReader(`{"max_contacts":-1}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCampaignRouteNeedsDialing(t *testing.T) {
	t.Parallel()

	_, ts, _ := newTestServer(t, newFakeCall(), nil)
	resp, err := http.Post(ts.URL+"/api/campaign/start", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDialedCallFlowsThroughTwiMLAndStatus(t *testing.T) {
	t.Parallel()

	crm := &fakeCRM{}
	contacts := &fakeContacts{contacts: campaignContacts()[:1]}
	_, ts, _ := newTestServer(t, newFakeCall(), crm, WithCampaign(contacts, &fakePlacer{}))
	startCampaign(t, ts.URL, `{"update_status_after_call":false}`)

	resp, err := http.PostForm(ts.URL+"/twiml", url.Values{"CallSid": {"CA-201"}})
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/xml", resp.Header.Get("Content-Type"))
	twiml := string(raw)
	assert.Contains(t, twiml, `/ws?contactId=201"`)
	assert.True(t, strings.Contains(twiml, `url="ws://`), twiml)
	assert.Contains(t, twiml, `<Parameter name="CallSid" value="CA-201"></Parameter>`)
	assert.Contains(t, twiml, `<Parameter name="leadStatus" value="NEW"></Parameter>`)

	// Twilio's status callback may omit contactId; the dial record supplies it.
	resp, err = http.PostForm(ts.URL+"/call_status", url.Values{"CallSid": {"CA-201"}, "CallStatus": {"no-answer"}})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, []contractx.LeadStatus{contractx.LeadStatusAttemptedToContact}, crm.statuses)
	require.Len(t, crm.notes, 1)
	assert.Contains(t, crm.notes[0], contractx.NoteField{Label: "Call SID", Value: "CA-201"})

	resp, err = http.Get(ts.URL + "/api/campaign/status")
	require.NoError(t, err)
	var status struct {
		Dialed     int          `json:"calls_dialed"`
		WithStatus int          `json:"calls_with_status"`
		Details    []CallRecord `json:"call_details"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.Equal(t, 1, status.Dialed)
	assert.Equal(t, 1, status.WithStatus)
	require.Len(t, status.Details, 1)
	assert.Equal(t, "no-answer", status.Details[0].TwilioStatus)
}

func TestTwiMLUsesConfiguredStreamURL(t *testing.T) {
	t.Parallel()

	_, ts, _ := newTestServer(t, newFakeCall(), nil, WithStreamURL("wss://calls.example.com/ws"))

	resp, err := http.PostForm(ts.URL+"/twiml?contactId=77", url.Values{})
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `<Stream url="wss://calls.example.com/ws?contactId=77">`)
}
