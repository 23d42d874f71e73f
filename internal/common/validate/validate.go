// Package validate holds the input rules shared by the HTTP, WebSocket and
// matchmaking surfaces. Every value that crosses a trust boundary passes
// through here before it reaches a room or the sandbox.
package validate

import (
	"regexp"
	"strings"
	"unicode"

	appErr "bitbattle/pkg/errors"
)

const (
	UsernameMinLength = 1
	UsernameMaxLength = 15

	RoomCodeMaxLength = 30

	// CodeMaxLength caps submitted source at 100KB.
	CodeMaxLength = 100_000

	ProblemIDMaxLength    = 100
	ConnectionIDMaxLength = 100

	MinPlayers = 1
	MaxPlayers = 4
)

// reservedUsernames are names that could be mistaken for system actors.
var reservedUsernames = map[string]struct{}{
	"admin":     {},
	"system":    {},
	"bot":       {},
	"moderator": {},
	"mod":       {},
	"null":      {},
	"undefined": {},
}

// Username trims and checks a display name. The returned value is the
// trimmed form callers must use from then on.
func Username(raw string) (string, error) {
	username := strings.TrimSpace(raw)
	if username == "" {
		return "", appErr.New(appErr.InvalidUsername).WithMessage("Username is required")
	}
	if len(username) > UsernameMaxLength {
		return "", appErr.Newf(appErr.InvalidUsername, "Username must be at most %d characters", UsernameMaxLength)
	}
	for _, r := range username {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			return "", appErr.New(appErr.InvalidUsername).
				WithMessage("Username can only contain letters, numbers, underscores, and hyphens")
		}
	}
	if _, ok := reservedUsernames[strings.ToLower(username)]; ok {
		return "", appErr.New(appErr.ReservedUsername)
	}
	return username, nil
}

// roomCodePattern is the canonical WORD-WORD-DDDD shape. Matchmaking
// generates codes in this shape and direct joins must use it too, so every
// room code in the system is uniform.
var roomCodePattern = regexp.MustCompile(`^[A-Z]+-[A-Z]+-\d{4}$`)

// RoomCode normalizes a room code to upper case and checks it against the
// canonical WORD-WORD-DDDD shape. Custom friend-room codes are allowed as
// long as they keep that shape.
func RoomCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if code == "" {
		return "", appErr.New(appErr.InvalidRoomCode).WithMessage("Room code is required")
	}
	if len(code) > RoomCodeMaxLength {
		return "", appErr.Newf(appErr.InvalidRoomCode, "Room code must be at most %d characters", RoomCodeMaxLength)
	}
	if !roomCodePattern.MatchString(code) {
		return "", appErr.New(appErr.InvalidRoomCode).
			WithMessage("Room code must look like WORD-WORD-1234")
	}
	return code, nil
}

// Code checks submitted source without modifying it. Whitespace is
// significant in several supported languages, so no trimming happens here.
func Code(source string) error {
	if source == "" {
		return appErr.ValidationError("code", "required")
	}
	if len(source) > CodeMaxLength {
		return appErr.Newf(appErr.CodeTooLarge, "Code exceeds maximum length of %d characters", CodeMaxLength)
	}
	if strings.ContainsRune(source, '\x00') {
		return appErr.ValidationError("code", "contains invalid characters")
	}
	return nil
}

// ProblemID trims and checks a problem identifier.
func ProblemID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", appErr.ValidationError("problem_id", "required")
	}
	if len(id) > ProblemIDMaxLength {
		return "", appErr.ValidationError("problem_id", "too long")
	}
	for _, r := range id {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			return "", appErr.ValidationError("problem_id", "invalid characters")
		}
	}
	return id, nil
}

// ConnectionID trims and checks a matchmaking connection identifier.
func ConnectionID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", appErr.ValidationError("connection_id", "required")
	}
	if len(id) > ConnectionIDMaxLength {
		return "", appErr.ValidationError("connection_id", "too long")
	}
	for _, r := range id {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return "", appErr.ValidationError("connection_id", "invalid characters")
		}
	}
	return id, nil
}

// PlayerCount checks the requested room size.
func PlayerCount(count int) error {
	if count < MinPlayers {
		return appErr.Newf(appErr.ValidationFailed, "Minimum %d players required", MinPlayers).
			WithDetail("field", "players")
	}
	if count > MaxPlayers {
		return appErr.Newf(appErr.ValidationFailed, "Maximum %d players allowed", MaxPlayers).
			WithDetail("field", "players")
	}
	return nil
}
