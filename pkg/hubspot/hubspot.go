package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/contract"
	"github.com/tidwall/gjson"
)

const (
	maxResponseSizeBytes = 1 << 20
	searchPageSize       = 100
	maxSearchPages       = 50
)

var contactSearchProperties = []string{"firstname", "lastname", "email", "phone", "hs_lead_status"}

type Config struct {
	AccessToken string        `split_words:"true" required:"true"`
	BaseURL     string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.hubapi.com"`
	Timeout     time.Duration `split_words:"true" default:"10s"`
	DealName    string        `split_words:"true" default:"Novated Leasing Deal"`
	DealStage   string        `split_words:"true" default:"appointmentscheduled"`
	Pipeline    string        `split_words:"true" default:"default"`
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// Client talks to the HubSpot CRM v3/v4 REST API with a private app token.
type Client struct {
	baseURL    string
	token      string
	dealName   string
	dealStage  string
	pipeline   string
	httpClient *http.Client
	now        func() time.Time
}

var (
	_ contractx.CRM           = (*Client)(nil)
	_ contractx.ContactSource = (*Client)(nil)
)

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errors.New("hubspot access token is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.hubapi.com"
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid hubspot base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		baseURL:    baseURL,
		token:      token,
		dealName:   orDefault(cfg.DealName, "Novated Leasing Deal"),
		dealStage:  orDefault(cfg.DealStage, "appointmentscheduled"),
		pipeline:   orDefault(cfg.Pipeline, "default"),
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

func MustNew(cfg Config, opts ...Option) *Client {
	c, err := NewClient(cfg, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// SetLeadStatus updates hs_lead_status on the contact.
func (c *Client) SetLeadStatus(ctx context.Context, contactID string, status contractx.LeadStatus) error {
	body := map[string]any{
		"properties": map[string]any{"hs_lead_status": string(status)},
	}
	_, err := c.do(ctx, http.MethodPatch, "/crm/v3/objects/contacts/"+url.PathEscape(contactID), body)
	return err
}

// SyncCallOutcome writes the call fields as a note on the contact.
func (c *Client) SyncCallOutcome(ctx context.Context, contactID string, fields []contractx.NoteField) error {
	return c.AddNote(ctx, contactID, RenderNote(fields))
}

// AddNote creates a note and associates it with the contact.
func (c *Client) AddNote(ctx context.Context, contactID, text string) error {
	body := map[string]any{
		"properties": map[string]any{
			"hs_note_body": text,
			"hs_timestamp": c.now().UnixMilli(),
		},
	}
	resp, err := c.do(ctx, http.MethodPost, "/crm/v3/objects/notes", body)
	if err != nil {
		return err
	}
	noteID := gjson.GetBytes(resp, "id").String()
	if noteID == "" {
		return fmt.Errorf("%w: hubspot note response has no id", contractx.ErrCollaborator)
	}
	return c.associate(ctx, "notes", noteID, contactID)
}

// CreateDeal opens a deal in the configured pipeline and links it to the contact.
func (c *Client) CreateDeal(ctx context.Context, contactID string) error {
	body := map[string]any{
		"properties": map[string]any{
			"dealname":  c.dealName,
			"dealstage": c.dealStage,
			"pipeline":  c.pipeline,
		},
	}
	resp, err := c.do(ctx, http.MethodPost, "/crm/v3/objects/deals", body)
	if err != nil {
		return err
	}
	dealID := gjson.GetBytes(resp, "id").String()
	if dealID == "" {
		return fmt.Errorf("%w: hubspot deal response has no id", contractx.ErrCollaborator)
	}
	return c.associate(ctx, "deals", dealID, contactID)
}

// SearchContactsByLeadStatus pages through contacts whose hs_lead_status is
// one of statuses. Contacts without a phone number are included; callers
// decide what to do with them.
func (c *Client) SearchContactsByLeadStatus(ctx context.Context, statuses []contractx.LeadStatus, limit int) ([]contractx.Contact, error) {
	if len(statuses) == 0 {
		return nil, fmt.Errorf("%w: at least one lead status is required", contractx.ErrValidation)
	}
	values := make([]string, 0, len(statuses))
	for _, st := range statuses {
		values = append(values, string(st))
	}

	var (
		contacts []contractx.Contact
		after    string
	)
	for page := 0; page < maxSearchPages; page++ {
		size := searchPageSize
		if limit > 0 && limit-len(contacts) < size {
			size = limit - len(contacts)
		}
		body := map[string]any{
			"filterGroups": []any{map[string]any{
				"filters": []any{map[string]any{
					"propertyName": "hs_lead_status",
					"operator":     "IN",
					"values":       values,
				}},
			}},
			"properties": contactSearchProperties,
			"limit":      size,
		}
		if after != "" {
			body["after"] = after
		}

		resp, err := c.do(ctx, http.MethodPost, "/crm/v3/objects/contacts/search", body)
		if err != nil {
			return nil, err
		}
		gjson.GetBytes(resp, "results").ForEach(func(_, r gjson.Result) bool {
			props := r.Get("properties")
			contacts = append(contacts, contractx.Contact{
				ID:         r.Get("id").String(),
				FirstName:  props.Get("firstname").String(),
				LastName:   props.Get("lastname").String(),
				Email:      props.Get("email").String(),
				Phone:      strings.TrimSpace(props.Get("phone").String()),
				LeadStatus: contractx.LeadStatus(props.Get("hs_lead_status").String()),
			})
			return true
		})

		after = gjson.GetBytes(resp, "paging.next.after").String()
		if after == "" || (limit > 0 && len(contacts) >= limit) {
			break
		}
	}
	if limit > 0 && len(contacts) > limit {
		contacts = contacts[:limit]
	}
	return contacts, nil
}

func (c *Client) associate(ctx context.Context, fromType, fromID, contactID string) error {
	path := fmt.Sprintf("/crm/v4/objects/%s/%s/associations/default/contacts/%s",
		fromType, url.PathEscape(fromID), url.PathEscape(contactID))
	_, err := c.do(ctx, http.MethodPut, path, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal hubspot request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build hubspot request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: hubspot %s %s: %v", contractx.ErrCollaborator, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read hubspot response: %v", contractx.ErrCollaborator, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg := gjson.GetBytes(raw, "message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return nil, fmt.Errorf("%w: hubspot %s %s status=%d: %s", contractx.ErrCollaborator, method, path, resp.StatusCode, msg)
	}
	return raw, nil
}

// RenderNote formats fields one per paragraph, in order.
func RenderNote(fields []contractx.NoteField) string {
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		lines = append(lines, f.Label+": "+f.Value)
	}
	return strings.Join(lines, "\n\n")
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
