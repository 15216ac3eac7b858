package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestUpstashRedisStoreRedisKey(t *testing.T) {
	t.Parallel()

	store := &UpstashRedisStore{}
	got, err := store.redisKey(" 901 ")
	if err != nil {
		t.Fatalf("redisKey() error = %v", err)
	}
	if got != "outbound:lead:901" {
		t.Fatalf("redisKey() = %q, want %q", got, "outbound:lead:901")
	}
}

func TestUpstashRedisStoreRedisKeyEmptyContact(t *testing.T) {
	t.Parallel()

	store := &UpstashRedisStore{}
	_, err := store.redisKey("   ")
	if !errors.Is(err, ErrInvalidContact) {
		t.Fatalf("redisKey() error = %v, want ErrInvalidContact", err)
	}
}

func TestUpstashRedisStoreRecordSendsSetWithTTL(t *testing.T) {
	t.Parallel()

	var gotCommand []any
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotCommand); err != nil {
			t.Errorf("decode command: %v", err)
		}
		fmt.Fprint(w, `{"result":"OK"}`)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashRedisStore(
		UpstashRedisConfig{URL: server.URL, Token: "token"},
		WithHTTPClient(server.Client()),
		WithTTL(90*time.Second),
	)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}

	lead := NewLead("contact-1", time.Now())
	lead.ManagerName = "Sam"
	snap := &Snapshot{Reason: SnapshotEmailCaptured, Lead: lead}
	if err := store.Record(context.Background(), snap); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if gotAuth != "Bearer token" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if len(gotCommand) != 5 {
		t.Fatalf("unexpected command: %#v", gotCommand)
	}
	if gotCommand[0] != "SET" || gotCommand[1] != "outbound:lead:contact-1" {
		t.Fatalf("unexpected command head: %#v", gotCommand[:2])
	}
	if gotCommand[3] != "EX" || gotCommand[4] != float64(90) {
		t.Fatalf("unexpected ttl args: %#v", gotCommand[3:])
	}
	if snap.TakenAt.IsZero() {
		t.Fatal("Record() must stamp TakenAt")
	}
}

func TestUpstashRedisStoreLoadRoundTrip(t *testing.T) {
	t.Parallel()

	lead := NewLead("contact-2", time.Now())
	lead.HasExistingProvider = No
	lead.CurrentProvider = NoProvider
	payload, err := json.Marshal(Snapshot{Reason: SnapshotSessionEnded, Lead: lead})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	encoded, err := json.Marshal(string(payload))
	if err != nil {
		t.Fatalf("marshal encoded: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"result":%s}`, encoded)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashRedisStore(UpstashRedisConfig{URL: server.URL, Token: "token"}, WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}

	got, err := store.Load(context.Background(), "contact-2")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Reason != SnapshotSessionEnded {
		t.Fatalf("Reason = %q", got.Reason)
	}
	if got.Lead.HasExistingProvider != No || got.Lead.CurrentProvider != NoProvider {
		t.Fatalf("unexpected lead: %+v", got.Lead)
	}
}

func TestUpstashRedisStoreLoadNotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":null}`)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashRedisStore(UpstashRedisConfig{URL: server.URL, Token: "token"}, WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}

	_, err = store.Load(context.Background(), "missing")
	if !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("Load() error = %v, want ErrSnapshotNotFound", err)
	}
}

func TestUpstashRedisStoreSurfacesRedisError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"WRONGPASS"}`)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashRedisStore(UpstashRedisConfig{URL: server.URL, Token: "token"}, WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}

	err = store.Record(context.Background(), &Snapshot{Lead: NewLead("c", time.Now())})
	if err == nil || err.Error() != "WRONGPASS" {
		t.Fatalf("Record() error = %v, want WRONGPASS", err)
	}
}

func TestNewUpstashRedisStoreValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewUpstashRedisStore(UpstashRedisConfig{Token: "t"}); err == nil {
		t.Fatal("expected error for missing url")
	}
	if _, err := NewUpstashRedisStore(UpstashRedisConfig{URL: "https://example.upstash.io"}); err == nil {
		t.Fatal("expected error for missing token")
	}
	if _, err := NewUpstashRedisStore(UpstashRedisConfig{URL: "https://example.upstash.io", Token: "t"}, WithTTL(-time.Second)); err == nil {
		t.Fatal("expected error for negative ttl")
	}
}

type recordingSink struct {
	calls int
	err   error
}

func (r *recordingSink) Record(ctx context.Context, snap *Snapshot) error {
	r.calls++
	return r.err
}

func TestMultiAuditTriesEverySink(t *testing.T) {
	t.Parallel()

	failing := &recordingSink{err: errors.New("down")}
	ok := &recordingSink{}
	sink := MultiAudit{failing, nil, ok}

	err := sink.Record(context.Background(), &Snapshot{Reason: SnapshotSessionEnded})
	if err == nil {
		t.Fatal("expected joined error")
	}
	if failing.calls != 1 || ok.calls != 1 {
		t.Fatalf("unexpected calls failing=%d ok=%d", failing.calls, ok.calls)
	}
}
