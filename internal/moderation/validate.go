package moderation

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

const (
	// MaxTextChars is the maximum character count of a checked message,
	// matching the chat layer's message limit.
	MaxTextChars = 2000

	// MaxExcerptChars bounds the content excerpt stored on a ViolationEvent.
	MaxExcerptChars = 500
)

// roomContextPattern matches room identifiers like "vip3-room" or "lobby".
var roomContextPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// ValidateRequest checks a request before any side effect and fills in the
// default language. All failures wrap ErrInvalidInput.
func ValidateRequest(req *CheckRequest) error {
	if req.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if req.Text == "" {
		return fmt.Errorf("%w: text is empty", ErrInvalidInput)
	}
	if !utf8.ValidString(req.Text) {
		return fmt.Errorf("%w: text contains invalid UTF-8", ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(req.Text); n > MaxTextChars {
		return fmt.Errorf("%w: text exceeds %d character limit (%d)", ErrInvalidInput, MaxTextChars, n)
	}
	if req.RoomContext != "" && !roomContextPattern.MatchString(req.RoomContext) {
		return fmt.Errorf("%w: malformed room_context %q", ErrInvalidInput, req.RoomContext)
	}
	switch req.Language {
	case "":
		req.Language = LangEN
	case LangEN, LangVI:
	default:
		return fmt.Errorf("%w: unsupported language %q", ErrInvalidInput, req.Language)
	}
	return nil
}

// Excerpt bounds text to MaxExcerptChars runes for storage on an event.
func Excerpt(text string) string {
	if utf8.RuneCountInString(text) <= MaxExcerptChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:MaxExcerptChars])
}
