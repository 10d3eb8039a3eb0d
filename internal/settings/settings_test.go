package settings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	s := Default("t1", "")
	assert.True(t, s.AIEnabled)
	assert.False(t, s.NightModeEnabled)
	assert.Equal(t, "UTC", s.Timezone)
	assert.Equal(t, 60, s.FollowUpDelayMinutes)
	assert.False(t, s.FollowUpConfigured())
	assert.NoError(t, s.Validate())
}

func TestInNightWindowUsesTenantTimezone(t *testing.T) {
	s := Default("t1", "Asia/Almaty")
	if s.Location() == time.UTC {
		t.Skip("tzdata unavailable")
	}
	s.NightModeEnabled = true

	// 18:00 UTC is 23:00 or 24:00 in Almaty depending on the offset in force.
	now := time.Date(2024, 10, 5, 18, 0, 0, 0, time.UTC)
	assert.True(t, s.InNightWindow(now))

	noonLocal := time.Date(2024, 10, 5, 12, 0, 0, 0, s.Location())
	assert.False(t, s.InNightWindow(noonLocal))

	s.NightModeEnabled = false
	assert.False(t, s.InNightWindow(now))
}

func TestQuietHoursInvalidClock(t *testing.T) {
	s := Default("t1", "UTC")
	s.NightModeEnabled = true
	s.NightStart = "late"
	_, ok := s.QuietHours()
	assert.False(t, ok)
	assert.ErrorIs(t, s.Validate(), ErrInvalidSettings)
}

func TestValidate(t *testing.T) {
	s := Default("", "UTC")
	assert.ErrorIs(t, s.Validate(), ErrInvalidSettings)

	s = Default("t1", "UTC")
	s.FollowUpDelayMinutes = -1
	assert.ErrorIs(t, s.Validate(), ErrInvalidSettings)

	s = Default("t1", "Mars/Phobos")
	assert.ErrorIs(t, s.Validate(), ErrInvalidSettings)
	assert.Equal(t, time.UTC, s.Location())
}

func TestCredentialAndFollowUp(t *testing.T) {
	s := Default("t1", "UTC")
	s.GatewayToken = "tok"
	s.GatewayInstanceID = "inst"
	require.True(t, s.Credential().Valid())

	s.FollowUpEnabled = true
	assert.False(t, s.FollowUpConfigured(), "template required")
	s.FollowUpMessage = "Вы ещё здесь?"
	assert.True(t, s.FollowUpConfigured())
}
