package model

const (
	RoleAdmin            = "ADMIN"
	PermissionCashManage = "cash.manage"
)

// Identity is the authenticated caller resolved from a bearer token.
type Identity struct {
	UserID      int64    `json:"user_id"`
	Name        string   `json:"name"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasPermission is true for admins regardless of the granted slugs.
func (i *Identity) HasPermission(slug string) bool {
	if i == nil {
		return false
	}
	if i.HasRole(RoleAdmin) {
		return true
	}
	for _, p := range i.Permissions {
		if p == slug {
			return true
		}
	}
	return false
}
