package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: User & Auth module errors
// 12000-12999: Problem module errors
// 13000-13999: Submission & Sandbox module errors
// 14000-14999: Room module errors
// 15000-15999: Matchmaking module errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102
	TransactionFailed   ErrorCode = 10103

	// Cache errors (10200-10299)
	CacheError     ErrorCode = 10200
	CacheMiss      ErrorCode = 10201
	CacheSetFailed ErrorCode = 10202
	LockFailed     ErrorCode = 10203

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// ========== User & Auth Module Errors (11000-11999) ==========

	// Authentication (11000-11099)
	InvalidCredentials    ErrorCode = 11000
	UserNotFound          ErrorCode = 11001
	PasswordIncorrect     ErrorCode = 11002
	TokenExpired          ErrorCode = 11003
	TokenInvalid          ErrorCode = 11004
	TokenGenerationFailed ErrorCode = 11005
	RefreshTokenRevoked   ErrorCode = 11006

	// Registration (11100-11199)
	UsernameAlreadyExists ErrorCode = 11100
	InvalidUsername       ErrorCode = 11101
	ReservedUsername      ErrorCode = 11102
	InvalidPassword       ErrorCode = 11103
	PasswordTooWeak       ErrorCode = 11104

	// User operations (11200-11299)
	UserUpdateFailed ErrorCode = 11200
	StatsNotFound    ErrorCode = 11201

	// ========== Problem Module Errors (12000-12999) ==========

	// Problem basic (12000-12099)
	ProblemNotFound   ErrorCode = 12000
	ProblemSetEmpty   ErrorCode = 12001
	ProblemLoadFailed ErrorCode = 12002

	// Test data (12100-12199)
	TestCaseInvalid ErrorCode = 12100

	// ========== Submission & Sandbox Module Errors (13000-13999) ==========

	// Submission (13000-13099)
	SubmissionNotFound     ErrorCode = 13000
	SubmissionCreateFailed ErrorCode = 13001
	CodeTooLarge           ErrorCode = 13002
	LanguageNotSupported   ErrorCode = 13003
	SubmitTooFrequently    ErrorCode = 13004
	DuplicateSubmission    ErrorCode = 13005

	// Sandbox (13100-13199)
	SandboxBusy         ErrorCode = 13100
	SandboxUnavailable  ErrorCode = 13101
	CompilationError    ErrorCode = 13102
	RuntimeError        ErrorCode = 13103
	TimeLimitExceeded   ErrorCode = 13104
	MemoryLimitExceeded ErrorCode = 13105
	OutputLimitExceeded ErrorCode = 13106

	// Source archive (13200-13299)
	ArchiveUploadFailed ErrorCode = 13200

	// ========== Room Module Errors (14000-14999) ==========

	// Room basic (14000-14099)
	RoomNotFound       ErrorCode = 14000
	RoomFull           ErrorCode = 14001
	RoomClosed         ErrorCode = 14002
	InvalidRoomCode    ErrorCode = 14003
	DuplicateUsername  ErrorCode = 14004
	RoomNotPlaying     ErrorCode = 14005
	NotAPlayer         ErrorCode = 14006
	RankedRequiresAuth ErrorCode = 14007

	// ========== Matchmaking Module Errors (15000-15999) ==========

	// Queue (15000-15099)
	AlreadyInQueue         ErrorCode = 15000
	NotInQueue             ErrorCode = 15001
	InvalidDifficulty      ErrorCode = 15002
	MatchmakingUnavailable ErrorCode = 15003
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError:       "Database operation failed",
	RecordNotFound:      "Record not found in database",
	RecordAlreadyExists: "Record already exists",
	TransactionFailed:   "Database transaction failed",

	// Cache
	CacheError:     "Cache operation failed",
	CacheMiss:      "Cache miss",
	CacheSetFailed: "Failed to set cache",
	LockFailed:     "Failed to acquire lock",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// User - Authentication
	InvalidCredentials:    "Invalid username or password",
	UserNotFound:          "User not found",
	PasswordIncorrect:     "Incorrect password",
	TokenExpired:          "Token has expired",
	TokenInvalid:          "Invalid token",
	TokenGenerationFailed: "Failed to generate token",
	RefreshTokenRevoked:   "Refresh token has been revoked",

	// User - Registration
	UsernameAlreadyExists: "Username already exists",
	InvalidUsername:       "Invalid username format",
	ReservedUsername:      "Username is reserved",
	InvalidPassword:       "Invalid password format",
	PasswordTooWeak:       "Password is too weak",

	// User - Operations
	UserUpdateFailed: "Failed to update user",
	StatsNotFound:    "Player stats not found",

	// Problem
	ProblemNotFound:   "Problem not found",
	ProblemSetEmpty:   "No problems available for this difficulty",
	ProblemLoadFailed: "Failed to load problem set",

	// Test data
	TestCaseInvalid: "Invalid test case format",

	// Submission
	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	CodeTooLarge:           "Code is too large",
	LanguageNotSupported:   "Programming language not supported",
	SubmitTooFrequently:    "Submitting too frequently, please wait",
	DuplicateSubmission:    "Identical submission is already being judged",

	// Sandbox
	SandboxBusy:         "All sandbox slots are busy, please try again",
	SandboxUnavailable:  "Sandbox runner is unavailable",
	CompilationError:    "Compilation error",
	RuntimeError:        "Runtime error",
	TimeLimitExceeded:   "Time limit exceeded",
	MemoryLimitExceeded: "Memory limit exceeded",
	OutputLimitExceeded: "Output limit exceeded",

	// Source archive
	ArchiveUploadFailed: "Failed to archive submission source",

	// Room
	RoomNotFound:       "Room not found",
	RoomFull:           "Room already has the required number of players",
	RoomClosed:         "Room has been closed",
	InvalidRoomCode:    "Invalid room code format",
	DuplicateUsername:  "Username already taken in this room",
	RoomNotPlaying:     "Room is not in a playing state",
	NotAPlayer:         "Username is not a player in this room",
	RankedRequiresAuth: "Ranked rooms require an authenticated account",

	// Matchmaking
	AlreadyInQueue:         "Already waiting in the matchmaking queue",
	NotInQueue:             "Not in the matchmaking queue",
	InvalidDifficulty:      "Invalid difficulty",
	MatchmakingUnavailable: "Matchmaking is unavailable",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == NotFound, c == RecordNotFound, c == UserNotFound, c == StatsNotFound,
		c == ProblemNotFound, c == RoomNotFound, c == SubmissionNotFound,
		c == NotAPlayer, c == NotInQueue:
		return 404
	case c >= 11000 && c < 11100: // Authentication errors
		return 401
	case c == Unauthorized, c == RankedRequiresAuth:
		return 401
	case c == Forbidden:
		return 403
	case c == RoomFull, c == RoomNotPlaying, c == DuplicateUsername,
		c == DuplicateSubmission, c == UsernameAlreadyExists,
		c == RecordAlreadyExists, c == AlreadyInQueue:
		return 409
	case c == TooManyRequests, c == SubmitTooFrequently:
		return 429
	case c == ServiceUnavailable, c == SandboxBusy, c == SandboxUnavailable,
		c == MatchmakingUnavailable:
		return 503
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == InvalidUsername, c == ReservedUsername,
		c == InvalidPassword, c == PasswordTooWeak, c == InvalidRoomCode,
		c == InvalidDifficulty, c == CodeTooLarge, c == LanguageNotSupported:
		return 400
	default:
		return 500
	}
}
