package qstash

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/contract"
	"github.com/tidwall/gjson"
)

type Config struct {
	URL         string        `split_words:"true" default:"https://qstash.upstash.io"`
	Token       string        `split_words:"true" required:"true"`
	Destination string        `split_words:"true" required:"true"`
	Retries     int           `split_words:"true" default:"3"`
	Delay       time.Duration `split_words:"true" default:"0s"`
	Timeout     time.Duration `split_words:"true" default:"10s"`
}

// Client publishes messages to QStash, which delivers them to Destination
// with its own retry schedule.
type Client struct {
	baseURL     string
	token       string
	destination string
	retries     int
	delay       time.Duration
	httpClient  *http.Client
}

var _ contractx.FollowUpPublisher = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("qstash url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("qstash token is required")
	}

	destination := strings.TrimSpace(cfg.Destination)
	if _, err := url.ParseRequestURI(destination); err != nil {
		return nil, fmt.Errorf("invalid qstash destination: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		destination: destination,
		retries:     cfg.Retries,
		delay:       cfg.Delay,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// PublishFollowUp queues the follow-up email job. The job's contact and kind
// form the deduplication id, so a repeated publish is dropped by QStash.
func (c *Client) PublishFollowUp(ctx context.Context, job contractx.FollowUpJob) error {
	_, err := c.Publish(ctx, job, job.ContactID+"-"+job.Kind)
	return err
}

// Publish sends body as JSON and returns the QStash message id.
func (c *Client) Publish(ctx context.Context, body any, dedupID string) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal qstash body: %w", err)
	}

	endpoint := c.baseURL + "/v2/publish/" + c.destination
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build qstash request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Upstash-Retries", strconv.Itoa(c.retries))
	if c.delay > 0 {
		req.Header.Set("Upstash-Delay", strconv.FormatInt(int64(c.delay/time.Second), 10)+"s")
	}
	if dedupID = strings.TrimSpace(dedupID); dedupID != "" {
		req.Header.Set("Upstash-Deduplication-Id", dedupID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: qstash publish: %v", contractx.ErrCollaborator, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read qstash response: %v", contractx.ErrCollaborator, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("%w: qstash status=%d body=%s", contractx.ErrCollaborator, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	return gjson.GetBytes(raw, "messageId").String(), nil
}
