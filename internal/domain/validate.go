package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxMessageLength = 5000
	MaxRoomIDLength  = 64
)

func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrMessageEmpty
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

func ValidateRoomID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidRoomID)
	}
	if utf8.RuneCountInString(id) > MaxRoomIDLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidRoomID, MaxRoomIDLength)
	}
	if strings.ContainsAny(id, "\r\n\t") {
		return fmt.Errorf("%w: contains control characters", ErrInvalidRoomID)
	}
	return nil
}
