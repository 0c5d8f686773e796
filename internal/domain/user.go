// Package domain contains entity without logic, just meta-data
package domain

// UserID is the principal identity bound to a realtime connection.
// Profiles live with the account service; the relay only ever sees
// the opaque ID the token verifier extracts.
type UserID string
