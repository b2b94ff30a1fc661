// Package categorize labels subscriptions with a spending category via the
// Gemini API. It is an optional collaborator: when disabled, every call
// returns ErrCategorizationDisabled and callers carry on without a label.
package categorize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/smallbiznis/recurra/internal/config"
	subscriptiondomain "github.com/smallbiznis/recurra/internal/subscription/domain"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const defaultModel = "gemini-2.0-flash"

// categories is the closed label set the model must choose from.
var categories = []string{
	"streaming",
	"music",
	"software",
	"gaming",
	"news",
	"fitness",
	"food_delivery",
	"cloud_storage",
	"education",
	"utilities",
	"other",
}

type geminiCategorizer struct {
	log   *zap.Logger
	model string
}

type noopCategorizer struct{}

func (noopCategorizer) Categorize(context.Context, subscriptiondomain.CategorizeRequest) (subscriptiondomain.Categorization, error) {
	return subscriptiondomain.Categorization{}, subscriptiondomain.ErrCategorizationDisabled
}

// Provide selects the real or the disabled collaborator from configuration.
func Provide(cfg config.Config, log *zap.Logger) subscriptiondomain.Categorizer {
	if !cfg.Categorizer.Enabled {
		return noopCategorizer{}
	}
	model := strings.TrimSpace(cfg.Categorizer.Model)
	if model == "" {
		model = defaultModel
	}
	return &geminiCategorizer{
		log:   log.Named("categorize"),
		model: model,
	}
}

type modelAnswer struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

func (c *geminiCategorizer) Categorize(ctx context.Context, req subscriptiondomain.CategorizeRequest) (subscriptiondomain.Categorization, error) {
	var out subscriptiondomain.Categorization

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return out, fmt.Errorf("categorize: create genai client: %w", err)
	}

	prompt := "You classify recurring subscription merchants into spending categories.\n\n" +
		"Task:\n" +
		"- Classify the merchant below into exactly one category from the list.\n" +
		"- Output STRICT JSON only (no comments, no extra text).\n" +
		"- Output a single JSON object with these fields:\n" +
		"  - \"category\": string, one of: " + strings.Join(categories, ", ") + "\n" +
		"  - \"confidence\": number between 0 and 1\n\n" +
		"Return ONLY valid raw JSON.\n" +
		"Do NOT wrap the response in code fences.\n" +
		"Output must begin with \"{\" and end with \"}\".\n\n" +
		"Merchant: " + req.MerchantName + "\n"

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return out, fmt.Errorf("categorize: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return out, fmt.Errorf("categorize: empty response from model")
	}

	var answer modelAnswer
	if err := json.Unmarshal([]byte(cleanModelJSON(rawText)), &answer); err != nil {
		return out, fmt.Errorf("categorize: unmarshal JSON: %w", err)
	}

	category := strings.ToLower(strings.TrimSpace(answer.Category))
	if !allowed(category) {
		c.log.Debug("model returned unknown category, keeping as other",
			zap.String("merchant", req.MerchantName),
			zap.String("category", category),
		)
		category = "other"
	}
	if answer.Confidence < 0 {
		answer.Confidence = 0
	}
	if answer.Confidence > 1 {
		answer.Confidence = 1
	}

	out.Category = category
	out.Confidence = answer.Confidence
	return out, nil
}

func allowed(category string) bool {
	for _, c := range categories {
		if c == category {
			return true
		}
	}
	return false
}

// cleanModelJSON strips Markdown fences and surrounding junk when the model
// ignores the raw-JSON instruction.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
