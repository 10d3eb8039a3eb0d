package webhooks

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cloudPayload = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "123",
    "changes": [{
      "field": "messages",
      "value": {
        "contacts": [{"profile": {"name": "Айгуль"}, "wa_id": "77011234567"}],
        "messages": [
          {"from": "77011234567", "id": "wamid.1", "type": "image", "image": {"id": "x"}},
          {"from": "77011234567", "id": "wamid.2", "type": "text", "text": {"body": "Сколько стоит дом?"}}
        ]
      }
    }]
  }]
}`

func TestNormalizeCloudAPI(t *testing.T) {
	in, strategy, err := NewNormalizer().Normalize([]byte(cloudPayload))
	require.NoError(t, err)
	assert.Equal(t, StrategyCloudAPI, strategy)
	assert.Equal(t, Inbound{Text: "Сколько стоит дом?", Phone: "77011234567", Name: "Айгуль", MessageID: "wamid.2"}, in)
}

func TestNormalizeFlatShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want Inbound
	}{
		{
			name: "message string",
			body: `{"message":"привет","phone":"+7 (701) 123-45-67"}`,
			want: Inbound{Text: "привет", Phone: "77011234567"},
		},
		{
			name: "text with chat id",
			body: `{"text":"привет","chatId":"77011234567@c.us","id":"m1"}`,
			want: Inbound{Text: "привет", Phone: "77011234567", MessageID: "m1"},
		},
		{
			name: "body with numeric sender",
			body: `{"body":"привет","from":77011234567}`,
			want: Inbound{Text: "привет", Phone: "77011234567"},
		},
		{
			name: "nested message object",
			body: `{"message":{"text":"привет","from":"77011234567","id":"m2"}}`,
			want: Inbound{Text: "привет", Phone: "77011234567", MessageID: "m2"},
		},
		{
			name: "message wins over text",
			body: `{"message":"first","text":"second","phone":"77011234567"}`,
			want: Inbound{Text: "first", Phone: "77011234567"},
		},
	}
	n := NewNormalizer()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in, strategy, err := n.Normalize([]byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, StrategyFlat, strategy)
			assert.Equal(t, tc.want, in)
		})
	}
}

func TestNormalizeMessagesArray(t *testing.T) {
	body := `{"messages":[{"body":"","from":"77011234567"},{"body":"окна 3","author":"77019998877@c.us","id":"a"}]}`
	in, strategy, err := NewNormalizer().Normalize([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, StrategyMessagesArray, strategy)
	assert.Equal(t, Inbound{Text: "окна 3", Phone: "77019998877", MessageID: "a"}, in)
}

func TestNormalizeCloudAPITakesPrecedence(t *testing.T) {
	body := `{"text":"flat","phone":"77010000000","entry":[{"changes":[{"value":{"messages":[{"from":"77011234567","text":{"body":"cloud"}}]}}]}]}`
	in, strategy, err := NewNormalizer().Normalize([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, StrategyCloudAPI, strategy)
	assert.Equal(t, "cloud", in.Text)
}

func TestNormalizeNoMatch(t *testing.T) {
	bodies := []string{
		`not json`,
		`[]`,
		`{}`,
		`{"text":"hello"}`,
		`{"text":"hello","phone":"123"}`,
		`{"status":"delivered","id":"x"}`,
		`{"entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.1"}]}}]}]}`,
	}
	n := NewNormalizer()
	for _, body := range bodies {
		_, strategy, err := n.Normalize([]byte(body))
		assert.True(t, errors.Is(err, ErrNoMatch), "body %s", body)
		assert.Empty(t, strategy)
	}
}

func TestNormalizerCustomOrder(t *testing.T) {
	n := NewNormalizer(
		Extractor{Name: StrategyFlat, Extract: extractFlat},
		Extractor{Name: StrategyCloudAPI, Extract: extractCloudAPI},
	)
	body := `{"text":"flat","phone":"77010000000","entry":[{"changes":[{"value":{"messages":[{"from":"77011234567","text":{"body":"cloud"}}]}}]}]}`
	in, strategy, err := n.Normalize([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, StrategyFlat, strategy)
	assert.Equal(t, "flat", in.Text)
}
