package qstash

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	contractx "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/contract"
)

func TestPublishFollowUp(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth, gotDedup, gotRetries string
	var gotJob contractx.FollowUpJob

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotDedup = r.Header.Get("Upstash-Deduplication-Id")
		gotRetries = r.Header.Get("Upstash-Retries")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotJob)
		_, _ = io.WriteString(w, `{"messageId":"msg_1"}`)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{URL: server.URL, Token: "qs-token", Destination: "https://example.com/followups", Retries: 3})
	require.NoError(t, err)

	job := contractx.FollowUpJob{
		ContactID:    "101",
		EmailAddress: "sam@acme.com",
		Kind:         contractx.FollowUpMeetingInvite,
		CreatedAt:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, client.PublishFollowUp(context.Background(), job))

	assert.Equal(t, "/v2/publish/https://example.com/followups", gotPath)
	assert.Equal(t, "Bearer qs-token", gotAuth)
	assert.Equal(t, "101-meeting_invite", gotDedup)
	assert.Equal(t, "3", gotRetries)
	assert.Equal(t, "sam@acme.com", gotJob.EmailAddress)
}

func TestPublishReturnsMessageID(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"messageId":"msg_42"}`)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{URL: server.URL, Token: "t", Destination: "https://example.com/x"})
	require.NoError(t, err)

	id, err := client.Publish(context.Background(), map[string]string{"a": "b"}, "")
	require.NoError(t, err)
	assert.Equal(t, "msg_42", id)
}

func TestPublishFailureWrapsCollaborator(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{URL: server.URL, Token: "bad", Destination: "https://example.com/x"})
	require.NoError(t, err)

	err = client.PublishFollowUp(context.Background(), contractx.FollowUpJob{ContactID: "1", Kind: contractx.FollowUpSummary})
	require.Error(t, err)
	assert.True(t, errors.Is(err, contractx.ErrCollaborator))
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{URL: "https://qstash.upstash.io", Destination: "https://example.com"})
	assert.Error(t, err, "missing token")

	_, err = NewClient(Config{URL: "https://qstash.upstash.io", Token: "t", Destination: "not a url"})
	assert.Error(t, err, "bad destination")
}
