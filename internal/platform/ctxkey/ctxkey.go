// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package ctxkey defines typed context keys used by middleware and handlers.
//
// # Safety
//
// It is used to store and retrieve per-request values (user identity, request ID, logger).
// Using a private, unexported type for keys prevents collisions with third-party
// packages that might also use context for storage.
package ctxkey

// key is an unexported type used for context keys to ensure type safety.
type key int

const (
	// KeyRequestID stores the correlation ID assigned to the request.
	KeyRequestID key = iota

	// KeyLogger stores the request-scoped *slog.Logger.
	KeyLogger

	// KeyUser stores the authenticated *sec.AuthClaims.
	KeyUser
)
