// ABOUTME: Validation and normalisation of inbound message payloads
// ABOUTME: Enforces field limits, recomputes size and stamps timestamps

package message

import (
	"time"
	"unicode/utf8"

	"github.com/nainya/msgstore/pkg/apierror"
)

var (
	errInvalidMessage = apierror.New(apierror.InvalidMessage, "Message is not valid.")
	errInvalidText    = apierror.New(apierror.InvalidMessage, "Message's text is not valid.")
	errInvalidTitle   = apierror.New(apierror.InvalidMessage, "Message's title is not valid.")
	errInvalidUpdate  = apierror.New(apierror.InvalidMessage, "Message update is not valid.")
	errEmptyUpdate    = apierror.New(apierror.InvalidMessage, "Message update must set text or title.")
)

// Validator turns decoded JSON payloads into messages and updates. It holds
// no state besides its clock and is safe for concurrent use.
type Validator struct {
	now func() time.Time
}

// NewValidator returns a validator reading time from now. A nil now uses the
// wall clock in UTC.
func NewValidator(now func() time.Time) *Validator {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Validator{now: now}
}

// CreateMessage validates a new message. Only text (required) and title may
// be present; a JSON null counts as absent.
func (v *Validator) CreateMessage(fields map[string]any) (*Message, error) {
	if !onlyKnownFields(fields) {
		return nil, errInvalidMessage
	}
	rawText, ok := present(fields, FieldText)
	if !ok {
		return nil, errInvalidMessage
	}

	msg := &Message{}
	if rawTitle, ok := present(fields, FieldTitle); ok {
		title, err := validateTitle(rawTitle)
		if err != nil {
			return nil, err
		}
		msg.Title = &title
	}

	text, err := validateText(rawText)
	if err != nil {
		return nil, err
	}
	msg.Text = text
	msg.Size = utf8.RuneCountInString(text)

	msg.CreatedAt = v.now()
	msg.LastModified = msg.CreatedAt
	return msg, nil
}

// CreateMessages validates every payload before returning any of them.
func (v *Validator) CreateMessages(items []map[string]any) ([]*Message, error) {
	msgs := make([]*Message, 0, len(items))
	for _, fields := range items {
		msg, err := v.CreateMessage(fields)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// CreateMessageUpdate validates a partial update. At least one of text and
// title must be present and nothing else may be.
func (v *Validator) CreateMessageUpdate(fields map[string]any) (*Update, error) {
	if !onlyKnownFields(fields) {
		return nil, errInvalidUpdate
	}

	upd := &Update{}
	if rawTitle, ok := present(fields, FieldTitle); ok {
		title, err := validateTitle(rawTitle)
		if err != nil {
			return nil, err
		}
		upd.Title = &title
	}
	if rawText, ok := present(fields, FieldText); ok {
		text, err := validateText(rawText)
		if err != nil {
			return nil, err
		}
		size := utf8.RuneCountInString(text)
		upd.Text = &text
		upd.Size = &size
	}

	if upd.Text == nil && upd.Title == nil {
		return nil, errEmptyUpdate
	}
	upd.LastModified = v.now()
	return upd, nil
}

func onlyKnownFields(fields map[string]any) bool {
	for k := range fields {
		if k != FieldText && k != FieldTitle {
			return false
		}
	}
	return true
}

func present(fields map[string]any, name string) (any, bool) {
	v, ok := fields[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func validateText(v any) (string, error) {
	s, ok := v.(string)
	if !ok || utf8.RuneCountInString(s) > TextMaxLength {
		return "", errInvalidText
	}
	return s, nil
}

func validateTitle(v any) (string, error) {
	s, ok := v.(string)
	if !ok || utf8.RuneCountInString(s) > TitleMaxLength {
		return "", errInvalidTitle
	}
	return s, nil
}
