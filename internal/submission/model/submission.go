// Package model defines the submission wire types shared by the HTTP
// endpoint and the room event stream.
package model

// SubmissionRequest is a request to judge one source file against a
// problem's hidden tests. RoomID is empty for practice runs outside a room.
type SubmissionRequest struct {
	Username  string `json:"username"`
	ProblemID string `json:"problem_id"`
	Code      string `json:"code"`
	Language  string `json:"language"`
	RoomID    string `json:"room_id,omitempty"`
}

// TestResult reports one hidden test. ActualOutput is the trimmed stdout of
// the run; Error carries a cleaned diagnostic when the run did not produce
// a comparable output.
type TestResult struct {
	Input           string `json:"input"`
	ExpectedOutput  string `json:"expected_output"`
	ActualOutput    string `json:"actual_output"`
	Passed          bool   `json:"passed"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
	Error           string `json:"error,omitempty"`
}

// SubmissionResult is the full verdict. Passed is true only when every
// hidden test passed. ExecutionTimeMs is the sum of per-test durations and
// SubmissionTime is a unix timestamp in seconds.
type SubmissionResult struct {
	Username        string       `json:"username"`
	ProblemID       string       `json:"problem_id"`
	Passed          bool         `json:"passed"`
	TotalTests      int          `json:"total_tests"`
	PassedTests     int          `json:"passed_tests"`
	TestResults     []TestResult `json:"test_results"`
	ExecutionTimeMs int64        `json:"execution_time_ms"`
	SubmissionTime  int64        `json:"submission_time"`
	Language        string       `json:"language,omitempty"`
}
