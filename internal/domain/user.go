package domain

import "strings"

// User is the single signed-in user. Credentials live outside this module.
type User struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Surname   string `json:"surname"`
	RUN       string `json:"run"`
	BirthDate string `json:"birth_date"`
	Email     string `json:"email"`
}

// MissingProfileFields lists the purchase-required fields that are blank.
func (u User) MissingProfileFields() []string {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"run", u.RUN},
		{"name", u.Name},
		{"surname", u.Surname},
		{"birth_date", u.BirthDate},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}
