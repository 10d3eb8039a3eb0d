// Package settings holds per-tenant messaging configuration.
package settings

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/leadflow/internal/gateway"
	"github.com/wolfman30/leadflow/internal/messaging/compliance"
)

// ErrInvalidSettings is returned when a settings document fails validation.
var ErrInvalidSettings = errors.New("settings: invalid")

const (
	defaultNightStart    = "22:00"
	defaultNightEnd      = "08:00"
	defaultFollowUpDelay = 60
)

// MessagingSettings configures automated messaging for one tenant.
type MessagingSettings struct {
	TenantID          string `json:"tenant_id"`
	GatewayToken      string `json:"gateway_token,omitempty"`
	GatewayInstanceID string `json:"gateway_instance_id,omitempty"`
	AIEnabled         bool   `json:"ai_enabled"`

	NightModeEnabled bool   `json:"night_mode_enabled"`
	NightStart       string `json:"night_start"` // "22:00" local time
	NightEnd         string `json:"night_end"`   // "08:00" local time
	NightMessage     string `json:"night_message,omitempty"`

	FollowUpEnabled      bool   `json:"follow_up_enabled"`
	FollowUpDelayMinutes int    `json:"follow_up_delay_minutes"`
	FollowUpMessage      string `json:"follow_up_message,omitempty"`

	CallSuggestionEnabled bool   `json:"call_suggestion_enabled"`
	CallSuggestionText    string `json:"call_suggestion_text,omitempty"`
	QuestionPromptEnabled bool   `json:"question_prompt_enabled"`
	QuestionPromptText    string `json:"question_prompt_text,omitempty"`

	Timezone  string    `json:"timezone"` // e.g. "Asia/Almaty"
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Default returns the settings used for a tenant that has saved nothing yet.
func Default(tenantID, timezone string) *MessagingSettings {
	if strings.TrimSpace(timezone) == "" {
		timezone = "UTC"
	}
	return &MessagingSettings{
		TenantID:             tenantID,
		AIEnabled:            true,
		NightStart:           defaultNightStart,
		NightEnd:             defaultNightEnd,
		FollowUpDelayMinutes: defaultFollowUpDelay,
		Timezone:             timezone,
	}
}

// Credential returns the tenant's gateway credential.
func (s *MessagingSettings) Credential() gateway.Credential {
	return gateway.Credential{Token: s.GatewayToken, InstanceID: s.GatewayInstanceID}
}

// Location resolves the tenant time zone, falling back to UTC.
func (s *MessagingSettings) Location() *time.Location {
	if s == nil || strings.TrimSpace(s.Timezone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LocalTime converts t to the tenant's wall clock.
func (s *MessagingSettings) LocalTime(t time.Time) time.Time {
	return t.In(s.Location())
}

// QuietHours returns the parsed night window. ok is false when night mode is
// disabled or the configured clocks are unusable.
func (s *MessagingSettings) QuietHours() (q compliance.QuietHours, ok bool) {
	if s == nil || !s.NightModeEnabled {
		return compliance.QuietHours{}, false
	}
	q, err := compliance.ParseQuietHours(s.NightStart, s.NightEnd)
	if err != nil {
		return compliance.QuietHours{}, false
	}
	return q, true
}

// InNightWindow reports whether now, in the tenant's local time, is inside an enabled night window.
func (s *MessagingSettings) InNightWindow(now time.Time) bool {
	q, ok := s.QuietHours()
	if !ok {
		return false
	}
	return q.Contains(s.LocalTime(now))
}

// FollowUpConfigured reports whether follow-ups should be scheduled.
func (s *MessagingSettings) FollowUpConfigured() bool {
	return s != nil && s.FollowUpEnabled && strings.TrimSpace(s.FollowUpMessage) != ""
}

// Validate checks the document before it is stored.
func (s *MessagingSettings) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: empty document", ErrInvalidSettings)
	}
	if strings.TrimSpace(s.TenantID) == "" {
		return fmt.Errorf("%w: tenant_id required", ErrInvalidSettings)
	}
	if s.NightModeEnabled {
		if _, err := compliance.ParseQuietHours(s.NightStart, s.NightEnd); err != nil {
			return fmt.Errorf("%w: night window: %v", ErrInvalidSettings, err)
		}
	}
	if s.FollowUpDelayMinutes < 0 {
		return fmt.Errorf("%w: follow_up_delay_minutes must not be negative", ErrInvalidSettings)
	}
	if tz := strings.TrimSpace(s.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("%w: timezone: %v", ErrInvalidSettings, err)
		}
	}
	return nil
}
