package context

import (
	"context"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// UserIDKey is the context key for the authenticated user ID
	UserIDKey ContextKey = "user_id"
	// RoleKey is the context key for the authenticated user's role
	RoleKey ContextKey = "role"
	// UsernameKey is the context key for the authenticated username
	UsernameKey ContextKey = "username"
	// StudentIDKey is the context key for the linked student record ID
	StudentIDKey ContextKey = "student_id"
)

// ExtractUserID extracts the user ID from the request context
func ExtractUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

// ExtractRole extracts the role from the request context
func ExtractRole(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(RoleKey).(string)
	return role, ok
}

// ExtractUsername extracts the username from the request context
func ExtractUsername(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(UsernameKey).(string)
	return username, ok
}

// ExtractStudentID extracts the linked student ID from the request context.
// Operators carry no student link, so absence is not an error.
func ExtractStudentID(ctx context.Context) (string, bool) {
	studentID, ok := ctx.Value(StudentIDKey).(string)
	return studentID, ok
}
