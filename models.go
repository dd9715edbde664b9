package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the account model. The plaintext password is transient and
// only lives on the struct until the store hashes it.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID       `bun:"id,pk,type:uuid" json:"id,omitempty"`
	Name          string          `bun:"name,notnull" json:"name"`
	Email         string          `bun:"email,notnull,unique" json:"email"`
	Password      string          `bun:"-" json:"-"`
	PasswordHash  string          `bun:"password_hash,notnull" json:"-"`
	Age           *int            `bun:"age" json:"age,omitempty"`
	Avatar        []byte          `bun:"avatar" json:"-"`
	Revision      int64           `bun:"revision,notnull,default:0" json:"-"`
	Tokens        []*SessionToken `bun:"rel:has-many,join:id=user_id" json:"-"`
	CreatedAt     *time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at,omitempty"`
}

// SessionToken is one issued bearer token. Rows are ordered by ID, which
// follows login order.
type SessionToken struct {
	bun.BaseModel `bun:"table:session_tokens,alias:stk"`
	ID            int64      `bun:"id,pk,autoincrement" json:"-"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"-"`
	Token         string     `bun:"token,notnull" json:"-"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"-"`
}

// PublicUser is the external representation of a User.
type PublicUser struct {
	ID        string     `json:"_id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Age       int        `json:"age"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Public strips credentials, tokens and avatar bytes.
func (u *User) Public() PublicUser {
	if u == nil {
		return PublicUser{}
	}

	age := 0
	if u.Age != nil {
		age = *u.Age
	}

	return PublicUser{
		ID:        u.ID.String(),
		Name:      u.Name,
		Email:     u.Email,
		Age:       age,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// HasToken reports whether token is in the loaded token list.
func (u *User) HasToken(token string) bool {
	if u == nil {
		return false
	}
	for _, t := range u.Tokens {
		if t != nil && t.Token == token {
			return true
		}
	}
	return false
}

// TokenStrings returns the raw token values in login order.
func (u *User) TokenStrings() []string {
	if u == nil {
		return nil
	}
	out := make([]string, 0, len(u.Tokens))
	for _, t := range u.Tokens {
		if t != nil {
			out = append(out, t.Token)
		}
	}
	return out
}

func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Age != nil {
		age := *u.Age
		c.Age = &age
	}
	return &c
}
