// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// # Expiry Parsing

// expiryLayouts are the textual timestamp encodings found in the session
// ledger, tried in order. New sessions are always written as RFC 3339.
var expiryLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
// Any numeric value above 10^12 is interpreted as milliseconds.
const epochMillisThreshold = int64(1_000_000_000_000)

/*
ParseExpiry decodes a session expiry stored in any of the supported encodings.

Description: The ledger accumulated several timestamp formats over its life:
RFC 3339 (with or without zone), the space-separated SQL form, and raw Unix
epochs in seconds or milliseconds. A value that matches none of them is an
error; callers must never treat unparsable rows as expired.

Parameters:
  - value: string (raw expires_at column value)

Returns:
  - time.Time: Parsed expiry instant
  - error: Unrecognized encoding
*/
func ParseExpiry(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("auth_expiry_empty")
	}

	// Textual encodings first
	for _, layout := range expiryLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed, nil
		}
	}

	// Numeric epoch, seconds or milliseconds
	if epoch, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		if epoch > epochMillisThreshold {
			return time.UnixMilli(epoch), nil
		}
		return time.Unix(epoch, 0), nil
	}

	return time.Time{}, fmt.Errorf("auth_expiry_unparsable: %q", value)
}

// FormatExpiry renders an expiry instant in the canonical encoding used for
// all newly written session rows.
func FormatExpiry(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
