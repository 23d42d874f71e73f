package repository

import "errors"

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrTokenNotFound  = errors.New("refresh token not found")
	ErrStatsNotFound  = errors.New("user stats not found")
	ErrUsernameExists = errors.New("username already exists")
	ErrDuplicate      = errors.New("record already exists")
)

// ratingColumn maps a difficulty onto its user_stats column prefix. Values
// come from the difficulty enum, never from request input.
func ratingColumn(difficulty string) string {
	switch difficulty {
	case "easy":
		return "easy"
	case "hard":
		return "hard"
	default:
		return "medium"
	}
}
