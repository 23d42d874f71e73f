package service

import (
	"fmt"
	"math/rand"
)

var (
	roomCodeAdjectives = []string{"SWIFT", "SHARP", "QUICK", "SMART", "BRAVE", "FAST", "COOL", "EPIC"}
	roomCodeNouns      = []string{"CODER", "HACKER", "NINJA", "MASTER", "WIZARD", "GENIUS", "HERO", "CHAMP"}
)

// GenerateRoomCode mints a WORD-WORD-DDDD code for a matched pair. Codes
// are not reserved here; the registry's insert-or-get makes collisions
// harmless (both sides land in the same room either way).
func GenerateRoomCode() string {
	adj := roomCodeAdjectives[rand.Intn(len(roomCodeAdjectives))]
	noun := roomCodeNouns[rand.Intn(len(roomCodeNouns))]
	return fmt.Sprintf("%s-%s-%d", adj, noun, 1000+rand.Intn(9000))
}
