package domain

// Identity is the signed-in shopper a session acts for.
type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Token    string `json:"-"`
}

// AuthChange is delivered to auth listeners when a session signs in or out.
// Identity is nil on sign out.
type AuthChange struct {
	Identity *Identity
}

// SignedIn reports whether the change is a sign in.
func (c AuthChange) SignedIn() bool {
	return c.Identity != nil
}
