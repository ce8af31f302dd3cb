// ABOUTME: Message data model and partial update document
// ABOUTME: Field names match the filterable query-string fields

package message

import "time"

// Limits on stored fields, counted in characters.
const (
	TextMaxLength  = 50_000
	TitleMaxLength = 50
)

// Document field names.
const (
	FieldID           = "id"
	FieldText         = "text"
	FieldTitle        = "title"
	FieldSize         = "size"
	FieldCreatedAt    = "created_at"
	FieldLastModified = "last_modified"
)

// Message is a stored text document. ID is assigned by the store.
type Message struct {
	ID           string    `json:"id"`
	Text         string    `json:"text"`
	Title        *string   `json:"title,omitempty"`
	Size         int       `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`
}

// Update is a partial change to a stored message. Nil fields are left as
// they are; CreatedAt is never part of an update.
type Update struct {
	Text         *string
	Title        *string
	Size         *int // set whenever Text is
	LastModified time.Time
}

// Document returns the fields the update sets, keyed by field name.
func (u *Update) Document() map[string]any {
	doc := map[string]any{FieldLastModified: u.LastModified}
	if u.Text != nil {
		doc[FieldText] = *u.Text
	}
	if u.Size != nil {
		doc[FieldSize] = *u.Size
	}
	if u.Title != nil {
		doc[FieldTitle] = *u.Title
	}
	return doc
}
