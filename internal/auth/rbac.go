package auth

import "strings"

type Mode string

const (
	ModeAND Mode = "AND"
	ModeOR  Mode = "OR"
)

// Requirement is the permission policy a route declares. An empty
// requirement allows every caller with an active membership.
type Requirement struct {
	Permissions []string
	Mode        Mode
	// Platform restricts the route to platform administrators, whose
	// membership in the resolved tenant holds the SUPERADMIN role.
	Platform bool
}

// AllOf requires every listed permission.
func AllOf(perms ...string) Requirement {
	return Requirement{Permissions: perms, Mode: ModeAND}
}

// AnyOf requires at least one of the listed permissions.
func AnyOf(perms ...string) Requirement {
	return Requirement{Permissions: perms, Mode: ModeOR}
}

// PlatformAdmin requires every listed permission and a platform
// administrator membership.
func PlatformAdmin(perms ...string) Requirement {
	return Requirement{Permissions: perms, Mode: ModeAND, Platform: true}
}

func (r Requirement) Empty() bool {
	return len(r.Permissions) == 0 && !r.Platform
}

// Satisfied evaluates the requirement over the granted permission keys. An
// unset Mode means AND.
func (r Requirement) Satisfied(granted []string) bool {
	if len(r.Permissions) == 0 {
		return true
	}

	have := make(map[string]struct{}, len(granted))
	for _, g := range granted {
		have[strings.ToLower(g)] = struct{}{}
	}

	if r.Mode == ModeOR {
		for _, p := range r.Permissions {
			if _, ok := have[strings.ToLower(p)]; ok {
				return true
			}
		}
		return false
	}

	for _, p := range r.Permissions {
		if _, ok := have[strings.ToLower(p)]; !ok {
			return false
		}
	}
	return true
}
