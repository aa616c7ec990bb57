package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/bloodchain/internal/donation"
)

func TestNowRFC3339_Format(t *testing.T) {
	_, err := time.Parse(time.RFC3339, NowRFC3339())
	require.NoError(t, err)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseDate("2024-02-29T10:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, 8, d.Hour())

	d, err = ParseDate("")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), d, time.Minute)

	_, err = ParseDate("last tuesday")
	assert.Error(t, err)
}

func TestNewHistoryEntry(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	h := NewHistoryEntry("acct", []donation.Donation{
		{DonorName: "Alice", BloodType: "A+", Date: ts},
		{DonorName: "Bob", BloodType: "A+", Date: ts},
		{DonorName: "Carol", BloodType: "O-", Date: ts},
	}, "rpc", ts)

	assert.Equal(t, "acct", h.Account)
	require.Len(t, h.Donations, 3)
	assert.Equal(t, "2024-01-02T03:04:05Z", h.Donations[0].Date)
	assert.Equal(t, map[string]int{"A+": 2, "O-": 1}, CountByBloodType(h.Donations))
}

func TestNewHistoryEntry_EmptyIsNotNull(t *testing.T) {
	h := NewHistoryEntry("acct", nil, "cache", time.Now())
	assert.NotNil(t, h.Donations)
}
