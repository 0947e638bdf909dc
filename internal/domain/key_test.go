package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLicenseKey_Status(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	usedBy := "hwid-user"

	tests := []struct {
		name string
		key  LicenseKey
		want KeyStatus
	}{
		{"active lifetime", LicenseKey{}, StatusActive},
		{"active with future expiry", LicenseKey{ExpiresAt: &future}, StatusActive},
		{"expired", LicenseKey{ExpiresAt: &past}, StatusExpired},
		{"used", LicenseKey{UsedBy: &usedBy, ExpiresAt: &future}, StatusUsed},
		// 已使用且已过期仍报告 Used，使用历史优先于过期
		{"used and expired", LicenseKey{UsedBy: &usedBy, ExpiresAt: &past}, StatusUsed},
		{"frozen beats everything", LicenseKey{Frozen: true, UsedBy: &usedBy, ExpiresAt: &past}, StatusFrozen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.Status(now))
		})
	}
}

func TestLicenseKey_StatusIsPure(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	key := LicenseKey{ExpiresAt: &past}

	before := key
	for i := 0; i < 3; i++ {
		assert.Equal(t, StatusExpired, key.Status(now))
	}
	assert.Equal(t, before, key, "status derivation must not mutate the record")
}

func TestParseDurationUnit(t *testing.T) {
	for _, valid := range []string{"second", "minute", "hour", "day", "week", "month", "lifetime"} {
		u, err := ParseDurationUnit(valid)
		require.NoError(t, err)
		assert.Equal(t, DurationUnit(valid), u)
	}

	_, err := ParseDurationUnit("fortnight")
	assert.ErrorIs(t, err, ErrInvalidDurationUnit)
	_, err = ParseDurationUnit("")
	assert.ErrorIs(t, err, ErrInvalidDurationUnit)
}

func TestExpiryFrom(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Nil(t, ExpiryFrom(start, DurationLifetime, 99), "lifetime never expires")

	sevenDays := ExpiryFrom(start, DurationDay, 7)
	require.NotNil(t, sevenDays)
	assert.Equal(t, start.Add(7*24*time.Hour), *sevenDays)

	twoWeeks := ExpiryFrom(start, DurationWeek, 2)
	require.NotNil(t, twoWeeks)
	assert.Equal(t, start.Add(14*24*time.Hour), *twoWeeks)
}
