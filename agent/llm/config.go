package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/contract"
	"github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/retrieval"
	openrouterx "github.com/tanpawarit/Chative-Outbound-Call-Flow/pkg/openrouter"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"150"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.7"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`
	MaxRetries         int           `envconfig:"MAX_RETRIES" split_words:"true" default:"2"`

	RetrievalModel       string  `envconfig:"RETRIEVAL_MODEL" split_words:"true"`
	RetrievalTemperature float64 `envconfig:"RETRIEVAL_TEMPERATURE" split_words:"true" default:"0.1"`
	RetrievalMaxTokens   int64   `envconfig:"RETRIEVAL_MAX_TOKENS" split_words:"true" default:"128"`

	MaxToolSteps int `envconfig:"MAX_TOOL_STEPS" split_words:"true" default:"4"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: conversation model is required", contractx.ErrValidation)
	}
	if c.MaxToolSteps < 0 {
		return fmt.Errorf("%w: max tool steps must be >= 0", contractx.ErrValidation)
	}
	return nil
}

// OpenRouter returns the chat model config for the spoken conversation.
func (c Config) OpenRouter() openrouterx.Config {
	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              strings.TrimSpace(c.Model),
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        c.Temperature,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
		MaxRetries:         c.MaxRetries,
	}
}

// Retrieval returns the knowledge-base answerer options. The conversation
// model is reused when no retrieval model is set.
func (c Config) Retrieval() retrieval.Options {
	modelName := strings.TrimSpace(c.RetrievalModel)
	if modelName == "" {
		modelName = strings.TrimSpace(c.Model)
	}
	return retrieval.Options{
		Model:       modelName,
		Temperature: c.RetrievalTemperature,
		MaxTokens:   c.RetrievalMaxTokens,
	}
}
