// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import "time"

// # Authentication Constraints

const (
	// RefreshWindow is the remaining-lifetime threshold at which clients are
	// advised to refresh their access token.
	RefreshWindow = 30 * time.Second

	// ResetTokenTTL is the duration a password reset token remains valid.
	// Short-lived (1 hour) for security.
	ResetTokenTTL = 1 * time.Hour

	// ResetTokenLength is the byte length of the random password reset token.
	ResetTokenLength = 32

	// MinPasswordLength is the minimum accepted password length.
	MinPasswordLength = 8

	// MinUsernameLength is the minimum accepted username length.
	MinUsernameLength = 3
)
