package vote

// AnonymousUsername is the reserved handle of the sentinel identity used as the
// ballot entry for anonymous surveys. The record is resolved once at startup and
// lazily created if absent; the core only ever reads its id.
const AnonymousUsername = "Anonymous"

// User is an identity record created at registration.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	ShownName    string `json:"shownName"`
	Anonymous    bool   `json:"anonymous"`
	PasswordHash string `json:"-"`
}

// PublicUser is the reduced shape embedded when reference lists are resolved
// for clients (username and display name only, never credentials).
type PublicUser struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	ShownName string `json:"shownName"`
}

// Public strips a user down to its client-visible fields.
func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username, ShownName: u.ShownName}
}
