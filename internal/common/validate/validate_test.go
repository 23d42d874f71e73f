package validate_test

import (
	"strings"
	"testing"

	"bitbattle/internal/common/validate"
	appErr "bitbattle/pkg/errors"
)

func TestUsername(t *testing.T) {
	valid := []string{"player123", "Player_123", "cool-player", "S", "ab"}
	for _, name := range valid {
		if _, err := validate.Username(name); err != nil {
			t.Errorf("Username(%q) = %v, want nil", name, err)
		}
	}

	tests := []struct {
		name     string
		username string
		wantCode appErr.ErrorCode
	}{
		{"empty", "", appErr.InvalidUsername},
		{"whitespace only", "   ", appErr.InvalidUsername},
		{"invalid char", "player@123", appErr.InvalidUsername},
		{"too long", strings.Repeat("a", 16), appErr.InvalidUsername},
		{"reserved", "admin", appErr.ReservedUsername},
		{"reserved mixed case", "ADMIN", appErr.ReservedUsername},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validate.Username(tt.username)
			if !appErr.Is(err, tt.wantCode) {
				t.Errorf("Username(%q) code = %v, want %v", tt.username, appErr.GetCode(err), tt.wantCode)
			}
		})
	}
}

func TestUsernameTrims(t *testing.T) {
	got, err := validate.Username("  alice  ")
	if err != nil {
		t.Fatalf("Username: %v", err)
	}
	if got != "alice" {
		t.Errorf("Username = %q, want %q", got, "alice")
	}
}

func TestRoomCode(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		want    string
		wantErr bool
	}{
		{"generated code", "SMART-MASTER-8418", "SMART-MASTER-8418", false},
		{"lower case normalized", "brave-coder-4303", "BRAVE-CODER-4303", false},
		{"custom words", "ROCK-SOLID-4242", "ROCK-SOLID-4242", false},
		{"empty", "", "", true},
		{"no digits", "SWIFT-CODER", "", true},
		{"three digits", "SWIFT-CODER-123", "", true},
		{"single word", "DEFAULT", "", true},
		{"too long", strings.Repeat("A", 20) + "-CODER-1234", "", true},
		{"invalid char", "ROOM_CODER_1234", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validate.RoomCode(tt.code)
			if tt.wantErr {
				if !appErr.Is(err, appErr.InvalidRoomCode) {
					t.Fatalf("RoomCode(%q) code = %v, want InvalidRoomCode", tt.code, appErr.GetCode(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("RoomCode(%q): %v", tt.code, err)
			}
			if got != tt.want {
				t.Errorf("RoomCode(%q) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestCode(t *testing.T) {
	if err := validate.Code("print('hello')"); err != nil {
		t.Errorf("Code: %v", err)
	}
	if err := validate.Code(""); !appErr.Is(err, appErr.ValidationFailed) {
		t.Errorf("empty code = %v, want ValidationFailed", appErr.GetCode(err))
	}
	if err := validate.Code(strings.Repeat("a", validate.CodeMaxLength+1)); !appErr.Is(err, appErr.CodeTooLarge) {
		t.Errorf("oversized code = %v, want CodeTooLarge", appErr.GetCode(err))
	}
	if err := validate.Code("print('a')\x00"); !appErr.Is(err, appErr.ValidationFailed) {
		t.Errorf("NUL byte code = %v, want ValidationFailed", appErr.GetCode(err))
	}
	// Exactly at the cap is fine.
	if err := validate.Code(strings.Repeat("a", validate.CodeMaxLength)); err != nil {
		t.Errorf("code at max length: %v", err)
	}
}

func TestProblemID(t *testing.T) {
	if got, err := validate.ProblemID(" two-sum "); err != nil || got != "two-sum" {
		t.Errorf("ProblemID = %q, %v", got, err)
	}
	invalid := []string{"", strings.Repeat("x", 101), "two sum", "two/sum"}
	for _, id := range invalid {
		if _, err := validate.ProblemID(id); err == nil {
			t.Errorf("ProblemID(%q) = nil, want error", id)
		}
	}
}

func TestConnectionID(t *testing.T) {
	if got, err := validate.ConnectionID("conn_123"); err != nil || got != "conn_123" {
		t.Errorf("ConnectionID = %q, %v", got, err)
	}
	invalid := []string{"", strings.Repeat("x", 101), "conn-123", "conn 123"}
	for _, id := range invalid {
		if _, err := validate.ConnectionID(id); err == nil {
			t.Errorf("ConnectionID(%q) = nil, want error", id)
		}
	}
}

func TestPlayerCount(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4} {
		if err := validate.PlayerCount(n); err != nil {
			t.Errorf("PlayerCount(%d) = %v, want nil", n, err)
		}
	}
	for _, n := range []int{0, -1, 5} {
		if err := validate.PlayerCount(n); err == nil {
			t.Errorf("PlayerCount(%d) = nil, want error", n)
		}
	}
}
