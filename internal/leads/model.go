package leads

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Temperature is the coarse interest score of a lead.
type Temperature string

const (
	TemperatureCold Temperature = "cold"
	TemperatureWarm Temperature = "warm"
	TemperatureHot  Temperature = "hot"
)

// StageType classifies pipeline stages independently of tenant-specific stage ids.
type StageType string

const (
	StageNew        StageType = "new"
	StageInProgress StageType = "in_progress"
	StageWantsCall  StageType = "wants_call"
	StageRefused    StageType = "refused"
)

// AttrScheduledCall marks a lead that already has a call booked with an operator.
const AttrScheduledCall = "scheduled_call_at"

const previewMaxRunes = 120

// Attributes holds structured facts extracted from the conversation.
type Attributes map[string]any

// Merge returns a copy of a with every key of patch applied on top.
// Keys absent from patch are preserved.
func (a Attributes) Merge(patch Attributes) Attributes {
	out := make(Attributes, len(a)+len(patch))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Has reports whether key is present with a non-empty value.
func (a Attributes) Has(key string) bool {
	v, ok := a[key]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// Lead is a prospective customer conversation tracked through a pipeline stage.
type Lead struct {
	ID                 string      `json:"id"`
	TenantID           string      `json:"tenant_id"`
	Name               string      `json:"name,omitempty"`
	Phone              string      `json:"phone"`
	Temperature        Temperature `json:"temperature"`
	PipelineStageID    string      `json:"pipeline_stage_id,omitempty"`
	StageType          StageType   `json:"stage_type,omitempty"`
	AIActive           bool        `json:"ai_active"`
	Notes              string      `json:"notes,omitempty"`
	LastMessageAt      *time.Time  `json:"last_message_at,omitempty"`
	LastMessagePreview string      `json:"last_message_preview,omitempty"`
	NoResponseSince    *time.Time  `json:"no_response_since"`
	Attributes         Attributes  `json:"attributes"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// Clone returns a deep enough copy for callers to mutate safely.
func (l *Lead) Clone() *Lead {
	if l == nil {
		return nil
	}
	cp := *l
	cp.Attributes = Attributes{}.Merge(l.Attributes)
	if l.LastMessageAt != nil {
		t := *l.LastMessageAt
		cp.LastMessageAt = &t
	}
	if l.NoResponseSince != nil {
		t := *l.NoResponseSince
		cp.NoResponseSince = &t
	}
	return &cp
}

// RecordInbound updates liveness for a message received from the lead.
func (l *Lead) RecordInbound(at time.Time, text string) {
	l.LastMessageAt = &at
	l.LastMessagePreview = Preview(text)
	l.NoResponseSince = nil
}

// RecordOutbound updates liveness for a message sent to the lead. Automated
// messages start the no-response clock; a human operator message clears it.
func (l *Lead) RecordOutbound(at time.Time, text string, awaitingReply bool) {
	l.LastMessageAt = &at
	l.LastMessagePreview = Preview(text)
	if awaitingReply {
		l.NoResponseSince = &at
	} else {
		l.NoResponseSince = nil
	}
}

// HasScheduledCall reports whether an operator call is already booked.
func (l *Lead) HasScheduledCall() bool {
	return l.Attributes.Has(AttrScheduledCall)
}

// Preview trims text to the length shown in lead lists.
func Preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= previewMaxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewMaxRunes-1]) + "…"
}
