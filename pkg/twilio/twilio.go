package twilio

import (
	"context"
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

type Config struct {
	AccountSID  string        `envconfig:"ACCOUNT_SID" required:"true"`
	AuthToken   string        `split_words:"true" required:"true"`
	PhoneNumber string        `split_words:"true" required:"true"`
	PublicURL   string        `envconfig:"PUBLIC_URL" required:"true"`
	BaseURL     string        `envconfig:"BASE_URL" default:"https://api.twilio.com"`
	Timeout     time.Duration `split_words:"true" default:"10s"`
}

// Status callback events Twilio accepts for outbound calls. Busy, no-answer
// and failed arrive as the CallStatus of the completed event.
var statusCallbackEvents = []string{"initiated", "ringing", "answered", "completed"}

// Client places outbound calls through the Twilio REST API. Twilio fetches
// call instructions from {PublicURL}/twiml and posts progress to
// {PublicURL}/call_status.
type Client struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	publicURL  string
	httpClient *http.Client
}

var _ contractx.CallPlacer = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	accountSID := strings.TrimSpace(cfg.AccountSID)
	if accountSID == "" {
		return nil, errors.New("twilio account sid is required")
	}
	authToken := strings.TrimSpace(cfg.AuthToken)
	if authToken == "" {
		return nil, errors.New("twilio auth token is required")
	}
	from := strings.TrimSpace(cfg.PhoneNumber)
	if from == "" {
		return nil, errors.New("twilio phone number is required")
	}

	publicURL := strings.TrimRight(strings.TrimSpace(cfg.PublicURL), "/")
	if _, err := url.ParseRequestURI(publicURL); err != nil {
		return nil, fmt.Errorf("invalid twilio public url: %w", err)
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid twilio base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    baseURL,
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		publicURL:  publicURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// PlaceCall rings call.To and returns the Twilio call sid.
func (c *Client) PlaceCall(ctx context.Context, call contractx.OutboundCall) (string, error) {
	to := strings.TrimSpace(call.To)
	if to == "" {
		return "", fmt.Errorf("%w: phone number is empty", contractx.ErrValidation)
	}

	callback := c.publicURL + "/call_status"
	if contactID := strings.TrimSpace(call.ContactID); contactID != "" {
		callback += "?" + url.Values{"contactId": {contactID}}.Encode()
	}

	form := url.Values{
		"To":                   {to},
		"From":                 {c.from},
		"Url":                  {c.publicURL + "/twiml"},
		"Method":               {http.MethodPost},
		"StatusCallback":       {callback},
		"StatusCallbackMethod": {http.MethodPost},
		"StatusCallbackEvent":  statusCallbackEvents,
	}

	endpoint := c.baseURL + "/2010-04-01/Accounts/" + url.PathEscape(c.accountSID) + "/Calls.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build twilio request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: twilio create call: %v", contractx.ErrCollaborator, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read twilio response: %v", contractx.ErrCollaborator, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg := gjson.GetBytes(raw, "message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return "", fmt.Errorf("%w: twilio status=%d: %s", contractx.ErrCollaborator, resp.StatusCode, msg)
	}

	sid := gjson.GetBytes(raw, "sid").String()
	if sid == "" {
		return "", fmt.Errorf("%w: twilio response has no call sid", contractx.ErrCollaborator)
	}
	return sid, nil
}
