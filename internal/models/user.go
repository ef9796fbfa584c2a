package models

const (
	RoleAdmin = "admin"
)

// Principal is the authenticated caller, built from the access token claims.
type Principal struct {
	Username string
	Email    string
	Roles    []string
}

func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// UserDetail is what the user directory knows about a user.
type UserDetail struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}
