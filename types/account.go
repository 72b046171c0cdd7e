package types

import "errors"

var ErrNotAuthorized = errors.New("user does not have permission for this action on this account")

// AuthLevel is the access a member has on an account. Each level inherits
// the permissions of the levels below it.
type AuthLevel int

const (
	AuthNone AuthLevel = iota
	AuthRead
	AuthUpdate
	AuthAdministrator
)

func (l AuthLevel) String() string {
	switch l {
	case AuthRead:
		return "READ"
	case AuthUpdate:
		return "UPDATE"
	case AuthAdministrator:
		return "ADMINISTRATOR"
	}
	return "NONE"
}

// AccountID identifies a single club account.
type AccountID struct {
	Name string
	ID   int
}

func (a AccountID) String() string {
	return a.Name
}

type AccountMember struct {
	Name  string
	Level AuthLevel
}

// Account holds the details of one club account. All cash, position and
// capital state is partitioned by account.
type Account struct {
	ID                AccountID
	Description       string
	ReportingCurrency string
	Type              string
	Broker            string
	Enabled           bool
	Members           []AccountMember
}

// HasAdministrator reports whether at least one member holds administrator
// rights. Every valid account must satisfy this.
func (a *Account) HasAdministrator() bool {
	for _, m := range a.Members {
		if m.Level == AuthAdministrator {
			return true
		}
	}
	return false
}

// UserToken carries the identity and access level of the caller for one
// account. It is created by the authentication layer and passed through
// every engine operation so failures stay attributable to a user.
type UserToken struct {
	User    string
	Account AccountID
	Level   AuthLevel
}

// Authorize checks the token against the required level. It returns
// ErrNotAuthorized instead of panicking so callers can propagate the
// failure as an ordinary result.
func (t *UserToken) Authorize(level AuthLevel) error {
	if t == nil || t.Level < level {
		return ErrNotAuthorized
	}
	return nil
}

func (t *UserToken) IsAdministrator() bool {
	return t != nil && t.Level == AuthAdministrator
}
