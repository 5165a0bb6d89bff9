// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateSecureToken returns a URL-safe random token of byteLength entropy bytes.
//
// # Usage
//
// Used for single-use credentials (password reset tokens) where the value
// itself is the secret and no claims need to be embedded.
func GenerateSecureToken(byteLength int) (string, error) {
	buffer := make([]byte, byteLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("sec: failed to generate secure token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}
