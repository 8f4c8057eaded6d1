package domain

import "time"

// User is the minimal identity-repository view the engine needs: enough to
// resolve a CIBA hint and to fill subject claims.
type User struct {
	ID          string    `bson:"_id" json:"id"`
	Issuer      string    `bson:"issuer" json:"issuer"`
	Email       string    `bson:"email,omitempty" json:"email,omitempty"`
	PhoneNumber string    `bson:"phone_number,omitempty" json:"phone_number,omitempty"`
	Provider    string    `bson:"provider,omitempty" json:"provider,omitempty"`
	Name        string    `bson:"name,omitempty" json:"name,omitempty"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}

// NotFoundUser is the sentinel returned by hint resolution when no user could
// be identified. Callers check Exists rather than handling errors, so a failed
// hint never leaks which hint type failed.
var NotFoundUser = User{ID: ""}

// Exists reports whether the user was actually resolved.
func (u User) Exists() bool {
	return u.ID != ""
}
