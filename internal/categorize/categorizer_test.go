package categorize

import (
	"context"
	"testing"

	"github.com/smallbiznis/recurra/internal/config"
	subscriptiondomain "github.com/smallbiznis/recurra/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestCleanModelJSON(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"plain object", `{"category":"streaming","confidence":0.9}`, `{"category":"streaming","confidence":0.9}`},
		{"fenced json", "```json\n{\"category\":\"music\"}\n```", `{"category":"music"}`},
		{"bare fence", "```\n{\"category\":\"music\"}\n```", `{"category":"music"}`},
		{"leading prose", "Here you go: {\"category\":\"news\"}", `{"category":"news"}`},
		{"surrounding whitespace", "  \n {\"category\":\"gaming\"} \n", `{"category":"gaming"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, cleanModelJSON(tc.raw))
		})
	}
}

func TestAllowed(t *testing.T) {
	assert.True(t, allowed("streaming"))
	assert.True(t, allowed("other"))
	assert.False(t, allowed("garbage"))
	assert.False(t, allowed(""))
}

func TestProvideDisabled(t *testing.T) {
	categorizer := Provide(config.Config{}, zap.NewNop())

	_, err := categorizer.Categorize(context.Background(), subscriptiondomain.CategorizeRequest{MerchantName: "Netflix"})
	assert.ErrorIs(t, err, subscriptiondomain.ErrCategorizationDisabled)
}
