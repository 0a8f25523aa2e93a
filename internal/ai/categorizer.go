// Package ai suggests an expense category from its description using an
// OpenAI-compatible chat completion API (Groq by default).
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"financeflow/internal/cache"
	"financeflow/internal/core"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "deepseek-r1-distill-llama-70b"

	requestTimeout = 30 * time.Second
	maxTokens      = 2048
	temperature    = 1
)

const systemPrompt = `You are a helpful assistant that categorizes expenses. Return only one of these categories, or if none of them fits the item, the category that suits it best according to your knowledge: [Food, Transportation, Housing, Entertainment, Healthcare, Education]. Your response must strictly have the form "Expense Name - Category" with no extra words.`

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// ChatCompleter is the part of the OpenAI client the categorizer uses.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Prediction is the model's answer. Label is what the model returned
// ("Coffee - Food"); Category is the category part, normalized to one of
// core.Categories when it matches.
type Prediction struct {
	Label    string `json:"label"`
	Category string `json:"category"`
	Cached   bool   `json:"cached"`
}

var fallback = Prediction{Label: core.CategoryOther, Category: core.CategoryOther}

type Categorizer struct {
	client ChatCompleter
	model  string
	cache  *cache.LRU[Prediction]
}

func New(apiKey, baseURL, model string, c *cache.LRU[Prediction]) *Categorizer {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL
	return NewWithClient(openai.NewClientWithConfig(config), model, c)
}

func NewWithClient(client ChatCompleter, model string, c *cache.LRU[Prediction]) *Categorizer {
	if model == "" {
		model = DefaultModel
	}
	return &Categorizer{client: client, model: model, cache: c}
}

func cacheKey(description string) string {
	return strings.ToLower(strings.Join(strings.Fields(description), " "))
}

// Categorize never fails: any error from the model yields the Other category.
func (c *Categorizer) Categorize(ctx context.Context, description string) Prediction {
	key := cacheKey(description)
	if key == "" {
		return fallback
	}
	if c.cache != nil {
		if p, ok := c.cache.Get(key); ok {
			p.Cached = true
			return p
		}
	}

	p, err := c.predict(ctx, description)
	if err != nil {
		slog.WarnContext(ctx, "AI categorization failed, falling back",
			"error", err,
			"model", c.model)
		return fallback
	}

	if c.cache != nil {
		c.cache.Set(key, p)
	}
	return p
}

func (c *Categorizer) predict(ctx context.Context, description string) (Prediction, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Categorize this expense: " + description},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return Prediction{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Prediction{}, errors.New("empty response from model")
	}
	return ParseLabel(resp.Choices[0].Message.Content)
}

// ParseLabel extracts the category from a model reply, dropping any
// reasoning block the model emitted before the answer.
func ParseLabel(content string) (Prediction, error) {
	label := strings.TrimSpace(thinkBlock.ReplaceAllString(content, ""))
	label = strings.Trim(label, "\"'` ")
	if label == "" {
		return Prediction{}, errors.New("blank answer from model")
	}
	if i := strings.Index(label, "\n"); i >= 0 {
		label = strings.TrimSpace(label[:i])
	}

	category := label
	if i := strings.LastIndex(label, " - "); i >= 0 {
		category = label[i+3:]
	}
	category = core.NormalizeCategory(strings.TrimRight(category, ". "))
	if category == "" {
		return Prediction{}, fmt.Errorf("no category in answer %q", label)
	}
	return Prediction{Label: label, Category: category}, nil
}
