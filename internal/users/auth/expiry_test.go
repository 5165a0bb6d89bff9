// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/flowra/internal/users/auth"
)

/*
TestParseExpiry_Encodings verifies that every historical ledger encoding
resolves to the same instant.
*/
func TestParseExpiry_Encodings(t *testing.T) {
	want := time.Date(2026, 8, 26, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
	}{
		{"rfc3339", "2026-08-26T10:30:00Z"},
		{"rfc3339_nano", "2026-08-26T10:30:00.000000000Z"},
		{"iso_no_zone", "2026-08-26T10:30:00"},
		{"sql_space", "2026-08-26 10:30:00"},
		{"epoch_seconds", "1787740200"},
		{"epoch_millis", "1787740200000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := auth.ParseExpiry(tt.value)
			require.NoError(t, err)
			assert.True(t, parsed.Equal(want), "parsed %v, want %v", parsed, want)
		})
	}
}

/*
TestParseExpiry_MillisThreshold checks the seconds/milliseconds boundary:
values above 10^12 are milliseconds, values below are seconds.
*/
func TestParseExpiry_MillisThreshold(t *testing.T) {
	asSeconds, err := auth.ParseExpiry("999999999999")
	require.NoError(t, err)
	assert.Equal(t, int64(999_999_999_999), asSeconds.Unix())

	asMillis, err := auth.ParseExpiry("1000000000001")
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000_000_001), asMillis.UnixMilli())
}

/*
TestParseExpiry_Rejects ensures unknown encodings are errors, never guesses.
*/
func TestParseExpiry_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"garbage", "not-a-date"},
		{"partial_date", "2026-08-26"},
		{"float_epoch", "1787740200.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.ParseExpiry(tt.value)
			assert.Error(t, err)
		})
	}
}

/*
TestFormatExpiry_RoundTrip checks that freshly written expiries parse back
to the same instant.
*/
func TestFormatExpiry_RoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second)

	parsed, err := auth.ParseExpiry(auth.FormatExpiry(now))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(now))
}
