package model

import "github.com/google/uuid"

// Notes holds the free text attached to an audit. Contents is internal;
// Store is shown to the store on the printed receipt. A zero ID means the
// row has not been created yet.
type Notes struct {
	ID       uuid.UUID
	AuditID  uuid.UUID
	Contents string
	Store    string
}

// Empty reports whether both note fields are blank.
func (n Notes) Empty() bool {
	return n.Contents == "" && n.Store == ""
}
