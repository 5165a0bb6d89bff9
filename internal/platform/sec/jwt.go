// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, JWT Signing) from
// the domain logic. It acts as an Infrastructure service injected into the
// Application layer via the token provider interfaces defined by consumers.
package sec

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenTypeRefresh is the 'typ' claim value that distinguishes refresh tokens
// from access tokens. Access tokens omit the claim entirely.
const tokenTypeRefresh = "refresh"

// AuthClaims represents the payload embedded inside a JWT Access Token.
//
// # Why custom claims?
//
// By embedding the role, the permission snapshot, and the admin flag directly
// inside the JWT, the authorization layer can resolve most decisions WITHOUT
// querying the database on every single API request. The server-side session
// ledger remains the revocation authority; the claims are the grant snapshot.
type AuthClaims struct {
	jwt.RegisteredClaims

	// Custom application claims are abbreviated to keep the JWT payload small.
	UserID      string              `json:"uid"`
	Username    string              `json:"unm"`
	Role        string              `json:"rol"`
	IsAdmin     bool                `json:"adm"`
	Permissions map[string][]string `json:"pms,omitempty"`
	TokenType   string              `json:"typ,omitempty"`
}

// TokenService handles generation and verification of JWT tokens using
// symmetric HMAC-SHA256 (HS256).
type TokenService struct {
	secret []byte
	issuer string
}

// NewTokenService creates a new TokenService from the shared signing secret.
func NewTokenService(secret, issuer string) (*TokenService, error) {
	if secret == "" {
		return nil, fmt.Errorf("sec: signing secret must not be empty")
	}
	return &TokenService{
		secret: []byte(secret),
		issuer: issuer,
	}, nil
}

// GenerateAccessToken creates a new JWT access token for a user.
//
// The permissions argument is the resource-type → permission-list snapshot
// resolved from the user's role at mint time.
func (service *TokenService) GenerateAccessToken(userID, username, role string, isAdmin bool, permissions map[string][]string, timeToLive time.Duration) (string, error) {
	currentTime := time.Now()
	claims := AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    service.issuer,
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(timeToLive)),
		},
		UserID:      userID,
		Username:    username,
		Role:        role,
		IsAdmin:     isAdmin,
		Permissions: permissions,
	}

	return service.sign(claims)
}

// GenerateRefreshToken creates a new long-lived JWT refresh token.
//
// Refresh tokens carry no authorization payload: they can only be exchanged
// for a fresh access token, never presented to a protected endpoint.
func (service *TokenService) GenerateRefreshToken(userID string, timeToLive time.Duration) (string, error) {
	currentTime := time.Now()
	claims := AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    service.issuer,
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(timeToLive)),
		},
		UserID:    userID,
		TokenType: tokenTypeRefresh,
	}

	return service.sign(claims)
}

// VerifyAccessToken checks the signature and validity of an access JWT.
//
// Refresh tokens are rejected here so a long-lived credential can never be
// replayed against a protected endpoint.
func (service *TokenService) VerifyAccessToken(tokenString string) (*AuthClaims, error) {
	claims, err := service.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType == tokenTypeRefresh {
		return nil, fmt.Errorf("sec: refresh token presented as access token")
	}
	return claims, nil
}

// VerifyRefreshToken checks the signature and validity of a refresh JWT.
func (service *TokenService) VerifyRefreshToken(tokenString string) (*AuthClaims, error) {
	claims, err := service.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != tokenTypeRefresh {
		return nil, fmt.Errorf("sec: access token presented as refresh token")
	}
	return claims, nil
}

// sign serializes and signs the claims with HS256.
func (service *TokenService) sign(claims AuthClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(service.secret)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign token: %w", err)
	}
	return signedToken, nil
}

// parse verifies the signature and expiry of a JWT string.
func (service *TokenService) parse(tokenString string) (*AuthClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AuthClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Pin the algorithm family to prevent alg-confusion attacks.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("sec: unexpected signing method: %v", token.Header["alg"])
		}
		return service.secret, nil
	})

	if err != nil {
		return nil, fmt.Errorf("sec: invalid token: %w", err)
	}

	claims, ok := token.Claims.(*AuthClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("sec: invalid token claims")
	}

	return claims, nil
}
