package account

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ValidateSlug checks account and list names.
func ValidateSlug(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s name is required", kind)
	}
	if len(name) > 64 {
		return fmt.Errorf("%s name too long (max 64)", kind)
	}
	if !slugRegex.MatchString(name) {
		return fmt.Errorf("%s name must be lowercase alphanumeric with underscores and hyphens", kind)
	}
	return nil
}

// Account is the tenant boundary (immutable value object).
type Account struct {
	id        string
	name      string
	createdAt time.Time
}

// New validates and creates an Account with a fresh id.
func New(name string) (Account, error) {
	if err := ValidateSlug("account", name); err != nil {
		return Account{}, err
	}
	return Account{
		id:        uuid.NewString(),
		name:      name,
		createdAt: time.Now().UTC(),
	}, nil
}

// Reconstruct creates an Account without validation (storage hydration).
func Reconstruct(id, name string, createdAt time.Time) Account {
	return Account{id: id, name: name, createdAt: createdAt}
}

// ID returns the account id.
func (a Account) ID() string { return a.id }

// Name returns the account name.
func (a Account) Name() string { return a.name }

// CreatedAt returns the creation time.
func (a Account) CreatedAt() time.Time { return a.createdAt }
