package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

// WhatsApp caps a text message at 4096 characters.
const maxMessageLength = 4096

// ValidateMessageContent checks size and encoding. Blank content is left to
// the controller, which reports it as empty_content.
func ValidateMessageContent(content string) error {
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	if utf8.RuneCountInString(content) > maxMessageLength {
		return errors.New("content exceeds maximum length")
	}
	return nil
}

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ValidateMessageID validates a message ID.
func ValidateMessageID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid message ID format")
	}
	return nil
}

// ValidateTenantID validates a tenant ID.
func ValidateTenantID(id string) error {
	if len(id) == 0 {
		return errors.New("tenant ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("tenant ID exceeds maximum length")
	}
	return nil
}

// ValidateLabel validates short operator-entered text such as tags and emoji.
func ValidateLabel(s string) error {
	if !utf8.ValidString(s) {
		return errors.New("value must be valid UTF-8")
	}
	if utf8.RuneCountInString(s) > 64 {
		return errors.New("value exceeds maximum length")
	}
	return nil
}
