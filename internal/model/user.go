package model

// User is the authenticated auditor as returned by the web service.
type User struct {
	ID            int64          `toml:"user_id" validate:"gt=0"`
	FirstName     string         `toml:"first_name" validate:"required"`
	LastName      string         `toml:"last_name" validate:"required"`
	Email         string         `toml:"email" validate:"required"`
	RoleID        int64          `toml:"role_id" validate:"gt=0"`
	RoleName      string         `toml:"role_name" validate:"required"`
	RoleRank      int            `toml:"role_rank"`
	ClientID      int64          `toml:"client_id" validate:"gt=0"`
	ClientName    string         `toml:"client_name" validate:"required"`
	Settings      []Setting      `toml:"settings"`
	SKUConditions []SKUCondition `toml:"sku_conditions"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Setting is one client-level option pushed down by the web service.
type Setting struct {
	Name  string `json:"setting_name" toml:"name" validate:"required"`
	Value string `json:"setting_value" toml:"value"`
}
