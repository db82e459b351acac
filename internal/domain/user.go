// Package domain contains core business types and interfaces.
//
// This file defines the User domain type. Users are created on first sign-in
// from the identity provider; their ID is the provider's opaque subject.
package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// User represents a tenant of the platform.
//
// This is the domain representation of a user, designed for use in business logic.
// It differs from repository.User in that it uses plain Go types instead of
// sql.Null* types and a parsed Plan.
type User struct {
	ID               string // Identity provider subject
	Email            string
	FirstName        string
	LastName         string
	Plan             Plan
	QuotaLimit       int // Cached maxSubmissionsPerMonth for Plan
	StripeCustomerID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DisplayName returns the user's first name, falling back to the email.
func (u *User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Email
}

// IsFree returns true if the user is on the free plan.
func (u *User) IsFree() bool {
	return u.Plan == PlanFree
}

// EnsureUserParams contains identity claims used to create a user on first sight.
type EnsureUserParams struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
}

// =============================================================================
// Conversion helpers from repository types
// =============================================================================

// NullStringValue safely extracts a string from sql.NullString.
func NullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// NullTimeValue safely extracts a time pointer from sql.NullTime.
func NullTimeValue(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

// ToNullString converts a string to sql.NullString.
func ToNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

// ToNullTime converts a time pointer to sql.NullTime.
func ToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// ToNullUUID converts a uuid pointer to uuid.NullUUID.
func ToNullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{Valid: false}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
