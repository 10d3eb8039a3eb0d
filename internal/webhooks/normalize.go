// Package webhooks accepts inbound provider callbacks and feeds them to the conversation pipeline.
package webhooks

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wolfman30/leadflow/internal/gateway"
)

// ErrNoMatch is returned when no extractor recognises the payload.
var ErrNoMatch = errors.New("webhooks: no text and phone found in payload")

// Inbound is the canonical message extracted from a provider payload.
type Inbound struct {
	Text      string
	Phone     string
	Name      string
	MessageID string
}

// Extractor pulls an Inbound from a decoded payload. ok is false when the
// shape is not recognised or lacks a usable text/phone pair.
type Extractor struct {
	Name    string
	Extract func(payload map[string]any) (Inbound, bool)
}

// Strategy names reported in metrics and debug output.
const (
	StrategyCloudAPI      = "cloud_api"
	StrategyFlat          = "flat"
	StrategyMessagesArray = "messages_array"
)

// DefaultExtractors lists the known payload shapes in precedence order.
func DefaultExtractors() []Extractor {
	return []Extractor{
		{Name: StrategyCloudAPI, Extract: extractCloudAPI},
		{Name: StrategyFlat, Extract: extractFlat},
		{Name: StrategyMessagesArray, Extract: extractMessagesArray},
	}
}

// Normalizer tries extractors in order and returns the first match.
type Normalizer struct {
	extractors []Extractor
}

func NewNormalizer(extractors ...Extractor) *Normalizer {
	if len(extractors) == 0 {
		extractors = DefaultExtractors()
	}
	return &Normalizer{extractors: extractors}
}

// Normalize decodes body and returns the extracted message with the name of
// the strategy that matched.
func (n *Normalizer) Normalize(body []byte) (Inbound, string, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return Inbound{}, "", fmt.Errorf("%w: body is not a JSON object", ErrNoMatch)
	}
	for _, ex := range n.extractors {
		in, ok := ex.Extract(payload)
		if !ok {
			continue
		}
		return in, ex.Name, nil
	}
	return Inbound{}, "", fmt.Errorf("%w: tried %s", ErrNoMatch, strings.Join(n.names(), ", "))
}

func (n *Normalizer) names() []string {
	out := make([]string, 0, len(n.extractors))
	for _, ex := range n.extractors {
		out = append(out, ex.Name)
	}
	return out
}

// extractCloudAPI handles entry[].changes[].value.messages[].
func extractCloudAPI(payload map[string]any) (Inbound, bool) {
	for _, entry := range asSlice(payload["entry"]) {
		for _, change := range asSlice(asMap(entry)["changes"]) {
			value := asMap(asMap(change)["value"])
			name := ""
			if contacts := asSlice(value["contacts"]); len(contacts) > 0 {
				name = asString(asMap(asMap(contacts[0])["profile"])["name"])
			}
			for _, raw := range asSlice(value["messages"]) {
				msg := asMap(raw)
				text := asString(asMap(msg["text"])["body"])
				if text == "" {
					text = asString(asMap(msg["button"])["text"])
				}
				if in, ok := build(text, asString(msg["from"]), name, asString(msg["id"])); ok {
					return in, true
				}
			}
		}
	}
	return Inbound{}, false
}

// extractFlat handles payloads with a top-level message, text or body field.
func extractFlat(payload map[string]any) (Inbound, bool) {
	var text string
	for _, key := range []string{"message", "text", "body"} {
		if text = textOf(payload[key]); text != "" {
			break
		}
	}
	nested := asMap(payload["message"])
	phone := firstNonEmpty(phoneOf(payload), phoneOf(nested))
	id := firstNonEmpty(asString(payload["id"]), asString(payload["message_id"]), asString(nested["id"]))
	name := firstNonEmpty(asString(payload["name"]), asString(payload["sender_name"]), asString(payload["pushname"]))
	return build(text, phone, name, id)
}

// extractMessagesArray handles a top-level messages[] list.
func extractMessagesArray(payload map[string]any) (Inbound, bool) {
	for _, raw := range asSlice(payload["messages"]) {
		msg := asMap(raw)
		text := firstNonEmpty(textOf(msg["text"]), textOf(msg["body"]), textOf(msg["message"]))
		name := firstNonEmpty(asString(msg["name"]), asString(msg["sender_name"]), asString(msg["pushname"]))
		if in, ok := build(text, phoneOf(msg), name, asString(msg["id"])); ok {
			return in, true
		}
	}
	return Inbound{}, false
}

func build(text, phone, name, id string) (Inbound, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Inbound{}, false
	}
	digits, err := gateway.NormalizePhone(stripJID(phone))
	if err != nil {
		return Inbound{}, false
	}
	return Inbound{Text: text, Phone: digits, Name: strings.TrimSpace(name), MessageID: strings.TrimSpace(id)}, true
}

func phoneOf(m map[string]any) string {
	for _, key := range []string{"phone", "from", "sender", "chatId", "chat_id", "wa_id", "author"} {
		if v := asString(m[key]); v != "" {
			return v
		}
	}
	return ""
}

// textOf accepts either a string or an object carrying body/text.
func textOf(v any) string {
	if s := asString(v); s != "" {
		return s
	}
	m := asMap(v)
	return firstNonEmpty(asString(m["body"]), asString(m["text"]))
}

func stripJID(phone string) string {
	if i := strings.IndexByte(phone, '@'); i >= 0 {
		return phone[:i]
	}
	return phone
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
