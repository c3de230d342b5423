// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package auth carries the identity a request handler resolved from a
// credential (user id, device/source id) down through a context.Context,
// for embedders that expose the engine's RecordChange/Push/Pull behind
// their own HTTP or RPC layer rather than calling them directly.
package auth

import (
	"context"
)

type contextKey string

const (
	sourceIDKey contextKey = "source_id"
	userIDKey   contextKey = "user_id"
)

// WithSourceID attaches the device/source id to ctx.
func WithSourceID(ctx context.Context, sourceID string) context.Context {
	return context.WithValue(ctx, sourceIDKey, sourceID)
}

// SourceID retrieves the device/source id attached by WithSourceID.
func SourceID(ctx context.Context) (string, bool) {
	sourceID, ok := ctx.Value(sourceIDKey).(string)
	return sourceID, ok
}

// WithUserID attaches the authenticated user id to ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID retrieves the user id attached by WithUserID.
func UserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok
}

// WithIdentity attaches both the user id and the device/source id in one
// call, the shape a JWT-authenticated middleware resolves in a single step
// (mirrors the (userID, deviceID) pair remotestore.PGServer.Authenticate
// extracts from a token's sub/did claims).
func WithIdentity(ctx context.Context, userID, sourceID string) context.Context {
	ctx = WithUserID(ctx, userID)
	ctx = WithSourceID(ctx, sourceID)
	return ctx
}
