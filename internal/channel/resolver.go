// Package channel maps finger aliases and chN names to device channel ids.
package channel

import (
	"strconv"
	"strings"
)

// None is returned for any alias that does not name a channel.
const None = 0

const prefix = "ch"

var fingers = map[string]int{
	"thumb":  1,
	"index":  2,
	"middle": 3,
	"ring":   4,
	"pinky":  5,
	"little": 5,
}

// Resolve returns the channel id for a finger alias ("thumb") or a
// channel name ("ch7"). Matching is case-insensitive. Unknown, empty or
// malformed input resolves to None.
func Resolve(alias string) int {
	name := strings.ToLower(strings.TrimSpace(alias))
	if name == "" {
		return None
	}

	if ch, ok := fingers[name]; ok {
		return ch
	}

	if digits, ok := strings.CutPrefix(name, prefix); ok {
		return parseDigits(digits)
	}

	return None
}

// Aliases returns the finger aliases in channel order.
func Aliases() []string {
	return []string{"thumb", "index", "middle", "ring", "pinky", "little"}
}

func parseDigits(s string) int {
	if s == "" {
		return None
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return None
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return None
	}
	return n
}
