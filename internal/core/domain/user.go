package domain

const (
	RoleStandard = "standard"
	RoleAdmin    = "admin"
)

// User models a registered account.
//
// Email is stored lowercased and is unique case-insensitively; username keeps
// its original casing but is also unique case-insensitively. PasswordHash is
// always a hasher output, never a raw password.
type User struct {
	Entity       `bson:",inline"`
	Email        string `bson:"email" json:"email"`
	Username     string `bson:"username" json:"username"`
	PasswordHash string `bson:"password_hash" json:"-"`
	Role         string `bson:"role" json:"role"`
	Active       bool   `bson:"active" json:"active"`
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// Claims is the identity and role data embedded in and recovered from a
// session token. The role is a copy taken at issuance time and goes stale if
// the user's role changes before the token expires.
type Claims struct {
	SubjectID string
	Role      string
}

// Identity is the authenticated principal an access guard resolves a token
// into. Depending on the resolution policy the role comes from the token
// claim or from a fresh read of the user record.
type Identity struct {
	UserID string
	Role   string
}
