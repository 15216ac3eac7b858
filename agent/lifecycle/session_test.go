package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	contractx "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/contract"
	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/flow"
	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/nodes"
	statex "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/state"
)

type crmCall struct {
	op        string
	contactID string
	status    contractx.LeadStatus
	fields    []contractx.NoteField
}

type fakeCRM struct {
	mu        sync.Mutex
	calls     []crmCall
	syncErr   error
	statusErr error
	dealErr   error
}

func (f *fakeCRM) SyncCallOutcome(ctx context.Context, contactID string, fields []contractx.NoteField) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, crmCall{op: "sync", contactID: contactID, fields: fields})
	return f.syncErr
}

func (f *fakeCRM) SetLeadStatus(ctx context.Context, contactID string, status contractx.LeadStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, crmCall{op: "status", contactID: contactID, status: status})
	return f.statusErr
}

func (f *fakeCRM) CreateDeal(ctx context.Context, contactID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, crmCall{op: "deal", contactID: contactID})
	return f.dealErr
}

func (f *fakeCRM) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.op)
	}
	return out
}

type fakeRetriever struct{}

func (fakeRetriever) Answer(ctx context.Context, question string, recent []contractx.Turn) (string, error) {
	return "answer", nil
}

type fakePresenter struct {
	presented []string
}

func (f *fakePresenter) Present(ctx context.Context, node *flow.Node) error {
	f.presented = append(f.presented, node.Name)
	return nil
}

func (f *fakePresenter) Terminate(ctx context.Context) error {
	return nil
}

type fakeFollowUp struct {
	jobs []contractx.FollowUpJob
	err  error
}

func (f *fakeFollowUp) PublishFollowUp(ctx context.Context, job contractx.FollowUpJob) error {
	f.jobs = append(f.jobs, job)
	return f.err
}

type fakeAudit struct {
	reasons []string
}

func (f *fakeAudit) Record(ctx context.Context, snap *statex.Snapshot) error {
	f.reasons = append(f.reasons, snap.Reason)
	return nil
}

var fixedNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func startSession(t *testing.T, contactID string, crm contractx.CRM, follow contractx.FollowUpPublisher, audit statex.AuditSink) (*Session, *fakePresenter) {
	t.Helper()

	logger := zerolog.Nop()
	presenter := &fakePresenter{}
	s, err := Start(context.Background(), Config{CorrelationID: contactID}, Deps{
		Presenter: presenter,
		Retriever: fakeRetriever{},
		CRM:       crm,
		Audit:     audit,
		FollowUp:  follow,
		Logger:    &logger,
		Now:       func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return s, presenter
}

func dispatch(t *testing.T, s *Session, action string, args flow.Args) {
	t.Helper()
	if _, err := s.Engine().Dispatch(context.Background(), action, args); err != nil {
		t.Fatalf("Dispatch(%s) error = %v", action, err)
	}
}

func TestStartInstallsGreeting(t *testing.T) {
	t.Parallel()

	s, presenter := startSession(t, " 1001 ", &fakeCRM{}, nil, nil)
	if s.Engine().Current().Name != nodes.NodeInitialGreeting {
		t.Fatalf("Current() = %s", s.Engine().Current().Name)
	}
	if len(presenter.presented) != 1 || presenter.presented[0] != nodes.NodeInitialGreeting {
		t.Fatalf("presented = %v", presenter.presented)
	}
	lead := s.Lead()
	if lead.ContactID != "1001" || lead.MeetingStatus != statex.MeetingNotDiscussed || lead.InterestedInOffering {
		t.Fatalf("unexpected initial lead: %+v", lead)
	}
}

func TestStartValidation(t *testing.T) {
	t.Parallel()

	if _, err := Start(context.Background(), Config{}, Deps{Retriever: fakeRetriever{}}); err == nil {
		t.Fatal("expected error for missing presenter")
	}
	if _, err := Start(context.Background(), Config{}, Deps{Presenter: &fakePresenter{}}); err == nil {
		t.Fatal("expected error for missing retriever")
	}
}

func TestEndRunsOnce(t *testing.T) {
	t.Parallel()

	crm := &fakeCRM{}
	s, _ := startSession(t, "1001", crm, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.End(context.Background())
		}()
	}
	wg.Wait()
	if err := s.Finalize(context.Background()); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	syncs := 0
	for _, op := range crm.ops() {
		if op == "sync" {
			syncs++
		}
	}
	if syncs != 1 {
		t.Fatalf("sync calls = %d, want 1", syncs)
	}
}

func TestFinalizeThenDisconnectSyncsOnce(t *testing.T) {
	t.Parallel()

	crm := &fakeCRM{}
	s, _ := startSession(t, "1001", crm, nil, nil)
	dispatch(t, s, nodes.ActionCaptureManagerDetails, flow.Args{"manager_name": "Sam", "company_name": "Acme"})
	dispatch(t, s, nodes.ActionHandleHasProviderResponse, flow.Args{"has_provider": true})
	dispatch(t, s, nodes.ActionCaptureProviderName, flow.Args{"provider_name": "Fleetcare"})
	dispatch(t, s, nodes.ActionHandleMeetingResponse, flow.Args{"accepts_meeting": true, "meeting_date": "next Tuesday", "meeting_time": "10am"})
	dispatch(t, s, nodes.ActionCaptureEmailAddress, flow.Args{"email": "sam@acme.com"})
	dispatch(t, s, nodes.ActionFinalizeAndUpdateCRM, nil)

	s.End(context.Background())

	got := crm.ops()
	want := []string{"sync", "status", "deal"}
	if len(got) != len(want) {
		t.Fatalf("crm ops = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("crm ops = %v, want %v", got, want)
		}
	}
	if crm.calls[1].status != contractx.LeadStatusOpenDeal {
		t.Fatalf("status = %s", crm.calls[1].status)
	}
	if len(crm.calls[0].fields) != 11 {
		t.Fatalf("note fields = %d", len(crm.calls[0].fields))
	}
}

func TestEndWithoutInterestMarksConnected(t *testing.T) {
	t.Parallel()

	crm := &fakeCRM{}
	s, _ := startSession(t, "1001", crm, nil, nil)
	s.End(context.Background())

	got := crm.ops()
	if len(got) != 2 || got[0] != "sync" || got[1] != "status" {
		t.Fatalf("crm ops = %v", got)
	}
	if crm.calls[1].status != contractx.LeadStatusConnected {
		t.Fatalf("status = %s", crm.calls[1].status)
	}
}

func TestEndSwallowsCRMFailures(t *testing.T) {
	t.Parallel()

	crm := &fakeCRM{syncErr: errors.New("notes down"), statusErr: errors.New("status down"), dealErr: errors.New("deal down")}
	s, _ := startSession(t, "1001", crm, nil, nil)
	dispatch(t, s, nodes.ActionCaptureManagerDetails, flow.Args{"manager_name": "Sam", "company_name": "Acme"})
	dispatch(t, s, nodes.ActionHandleHasProviderResponse, flow.Args{"has_provider": false})
	dispatch(t, s, nodes.ActionHandleMeetingResponse, flow.Args{"accepts_meeting": true})

	s.End(context.Background())

	if got := crm.ops(); len(got) != 3 {
		t.Fatalf("crm ops = %v, every step must still be attempted", got)
	}
}

func TestEndWithoutContactSkipsCRM(t *testing.T) {
	t.Parallel()

	crm := &fakeCRM{}
	audit := &fakeAudit{}
	s, _ := startSession(t, "  ", crm, nil, audit)
	s.End(context.Background())

	if got := crm.ops(); len(got) != 0 {
		t.Fatalf("crm ops = %v", got)
	}
	if len(audit.reasons) != 1 || audit.reasons[0] != statex.SnapshotSessionEnded {
		t.Fatalf("audit reasons = %v", audit.reasons)
	}
}

func TestEndPublishesFollowUp(t *testing.T) {
	t.Parallel()

	follow := &fakeFollowUp{}
	s, _ := startSession(t, "1001", &fakeCRM{}, follow, nil)
	dispatch(t, s, nodes.ActionCaptureManagerDetails, flow.Args{"manager_name": "Jo", "company_name": "Beta"})
	dispatch(t, s, nodes.ActionHandleHasProviderResponse, flow.Args{"has_provider": false})
	dispatch(t, s, nodes.ActionHandleMeetingResponse, flow.Args{"accepts_meeting": false})
	dispatch(t, s, nodes.ActionHandleEmailSummaryResponse, flow.Args{"wants_summary": true})
	dispatch(t, s, nodes.ActionCaptureEmailAddress, flow.Args{"email": "jo@beta.io"})

	s.End(context.Background())

	if len(follow.jobs) != 1 {
		t.Fatalf("jobs = %+v", follow.jobs)
	}
	job := follow.jobs[0]
	if job.Kind != contractx.FollowUpSummary || job.EmailAddress != "jo@beta.io" || job.ContactID != "1001" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if !job.CreatedAt.Equal(fixedNow) {
		t.Fatalf("CreatedAt = %v", job.CreatedAt)
	}
}

func TestFollowUpFor(t *testing.T) {
	t.Parallel()

	lead := statex.NewLead("c", fixedNow)
	if _, ok := FollowUpFor(lead, fixedNow); ok {
		t.Fatal("no email means no follow-up")
	}

	lead.EmailAddress = statex.NotProvided
	lead.MeetingStatus = statex.MeetingInterestedToSchedule
	if _, ok := FollowUpFor(lead, fixedNow); ok {
		t.Fatal("sentinel email means no follow-up")
	}

	lead.EmailAddress = "a@b.co"
	lead.MeetingDayTime = "Friday at 9am"
	job, ok := FollowUpFor(lead, fixedNow)
	if !ok || job.Kind != contractx.FollowUpMeetingInvite || job.MeetingDayTime != "Friday at 9am" {
		t.Fatalf("unexpected job: %+v, %v", job, ok)
	}
}

func TestLeadStatusFor(t *testing.T) {
	t.Parallel()

	lead := statex.NewLead("c", fixedNow)
	if got := LeadStatusFor(lead); got != contractx.LeadStatusConnected {
		t.Fatalf("LeadStatusFor() = %s", got)
	}
	lead.InterestedInOffering = true
	if got := LeadStatusFor(lead); got != contractx.LeadStatusOpenDeal {
		t.Fatalf("LeadStatusFor() = %s", got)
	}
}
