// Package identity defines the user profile snapshot held by a portal session.
//
// The types mirror the user document served by the portal REST API. Wire
// names (JSON tags and enum values) follow the backend so that a profile can
// be decoded from an API response and re-encoded into local storage without
// translation.
//
// # Roles
//
//   - RolePatient: a beneficiary enrolled in one care program
//   - RoleCommunityWorker: a community health worker (ASHA)
//   - RoleAdministrator: a portal administrator
//
// # Care categories
//
// CareCategory is only meaningful for patients. Values the portal does not
// recognise are preserved as-is so they survive a storage round-trip; callers
// decide how to treat them (routing falls back to the maternity program).
package identity

// Role is the portal role of a user.
type Role string

const (
	RolePatient         Role = "user"
	RoleCommunityWorker Role = "asha_worker"
	RoleAdministrator   Role = "admin"
)

// Known reports whether r is one of the portal roles.
func (r Role) Known() bool {
	switch r {
	case RolePatient, RoleCommunityWorker, RoleAdministrator:
		return true
	}
	return false
}

func (r Role) String() string {
	switch r {
	case RolePatient:
		return "Patient"
	case RoleCommunityWorker:
		return "CommunityWorker"
	case RoleAdministrator:
		return "Administrator"
	}
	return string(r)
}

// CareCategory is the care program a patient is enrolled in.
type CareCategory string

const (
	CategoryNone       CareCategory = ""
	CategoryMaternity  CareCategory = "maternity"
	CategoryPalliative CareCategory = "palliative"
)

// Known reports whether c is one of the care programs.
func (c CareCategory) Known() bool {
	return c == CategoryMaternity || c == CategoryPalliative
}

// ParseCareCategory accepts the wire value or the display name of a program.
func ParseCareCategory(s string) (CareCategory, bool) {
	switch s {
	case "maternity", "Maternity":
		return CategoryMaternity, true
	case "palliative", "Palliative":
		return CategoryPalliative, true
	}
	return CategoryNone, false
}

// Profile is the user-profile snapshot paired with an access token.
type Profile struct {
	ID               string       `json:"id"`
	Email            string       `json:"email"`
	DisplayName      string       `json:"name"`
	Role             Role         `json:"userType"`
	CareCategory     CareCategory `json:"beneficiaryCategory,omitempty"`
	IsFirstLogin     bool         `json:"isFirstLogin"`
	ProfileCompleted bool         `json:"profileCompleted"`
}

// Clone returns a copy of p that shares no memory with it.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// NeedsOnboarding reports whether the profile must pass the program-category
// selection step before the rest of the portal is reachable.
func (p *Profile) NeedsOnboarding() bool {
	if p == nil {
		return false
	}
	return p.IsFirstLogin && p.Role == RolePatient && !p.ProfileCompleted
}

// ProfilePatch is a partial profile update. Nil fields are left untouched.
type ProfilePatch struct {
	DisplayName      *string       `json:"name,omitempty"`
	CareCategory     *CareCategory `json:"beneficiaryCategory,omitempty"`
	IsFirstLogin     *bool         `json:"isFirstLogin,omitempty"`
	ProfileCompleted *bool         `json:"profileCompleted,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (pp ProfilePatch) Empty() bool {
	return pp.DisplayName == nil && pp.CareCategory == nil && pp.IsFirstLogin == nil && pp.ProfileCompleted == nil
}

// Apply returns a copy of p with the patch merged in.
func (pp ProfilePatch) Apply(p *Profile) *Profile {
	out := p.Clone()
	if out == nil {
		return nil
	}
	if pp.DisplayName != nil {
		out.DisplayName = *pp.DisplayName
	}
	if pp.CareCategory != nil {
		out.CareCategory = *pp.CareCategory
	}
	if pp.IsFirstLogin != nil {
		out.IsFirstLogin = *pp.IsFirstLogin
	}
	if pp.ProfileCompleted != nil {
		out.ProfileCompleted = *pp.ProfileCompleted
	}
	return out
}

// RegistrationForm carries the fields of a new account.
type RegistrationForm struct {
	Email        string       `json:"email"`
	Password     string       `json:"password"`
	Name         string       `json:"name"`
	Phone        string       `json:"phone"`
	Role         Role         `json:"userType"`
	CareCategory CareCategory `json:"beneficiaryCategory"`
}
