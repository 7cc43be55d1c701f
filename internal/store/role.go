package store

import "strings"

// Role is a player's specialism, resolved from free text once at import.
type Role string

const (
	RoleBatsman      Role = "BATSMAN"
	RoleBowler       Role = "BOWLER"
	RoleAllRounder   Role = "ALL ROUNDER"
	RoleWicketKeeper Role = "WICKET KEEPER"
	RoleOther        Role = "OTHER"
)

// ParseRole maps spreadsheet specialisms such as "BAT", "WK-Batsman",
// "All-Rounder" or "bowler" onto a Role.
//
// Keeper is checked first so "WICKET KEEPER BATSMAN" is a keeper. Text that
// names no specialism is RoleOther.
func ParseRole(s string) Role {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", " ", "_", " ", "/", " ").Replace(norm)
	norm = strings.Join(strings.Fields(norm), " ")
	words := strings.Fields(norm)

	switch {
	case norm == "":
		return RoleOther
	case strings.Contains(norm, "WICKET KEEPER") || strings.Contains(norm, "WICKETKEEPER") || hasWord(words, "WK") || hasWord(words, "KEEPER"):
		return RoleWicketKeeper
	case strings.Contains(norm, "ALL ROUNDER") || strings.Contains(norm, "ALLROUNDER") || hasWord(words, "AR"):
		return RoleAllRounder
	case strings.Contains(norm, "BOWL"):
		return RoleBowler
	case strings.Contains(norm, "BAT"):
		return RoleBatsman
	default:
		return RoleOther
	}
}

func hasWord(words []string, w string) bool {
	for _, x := range words {
		if x == w {
			return true
		}
	}
	return false
}
