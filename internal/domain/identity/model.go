package identity

import (
	"strings"
	"time"
)

// Patient maps to the patients table.
type Patient struct {
	ID          int64     `db:"id" json:"id"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	DateOfBirth time.Time `db:"dob" json:"dob"`
	Phone       string    `db:"phone" json:"phone"`
	Email       *string   `db:"email" json:"email,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// Matches reports whether query occurs, ignoring case, in the full name,
// the date of birth (YYYY-MM-DD) or the phone number. An empty query
// matches every patient.
func (p *Patient) Matches(query string) bool {
	q := strings.ToLower(query)
	for _, field := range []string{p.FullName(), p.DateOfBirth.Format(time.DateOnly), p.Phone} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// Field is an optional update value. Set distinguishes "leave unchanged"
// from an explicit zero value.
type Field[T any] struct {
	Value T
	Set   bool
}

// Some returns a Field set to v.
func Some[T any](v T) Field[T] {
	return Field[T]{Value: v, Set: true}
}

// PatientUpdate names the patient columns a caller may change. Only set
// fields are written.
type PatientUpdate struct {
	FirstName   Field[string]
	LastName    Field[string]
	DateOfBirth Field[time.Time]
	Phone       Field[string]
	Email       Field[*string]
}

// Empty reports whether no field is set.
func (u PatientUpdate) Empty() bool {
	return !u.FirstName.Set && !u.LastName.Set && !u.DateOfBirth.Set && !u.Phone.Set && !u.Email.Set
}

// assignments returns the column names and values of the set fields, in a
// stable order.
func (u PatientUpdate) assignments() ([]string, []any) {
	var cols []string
	var args []any
	if u.FirstName.Set {
		cols = append(cols, "first_name")
		args = append(args, u.FirstName.Value)
	}
	if u.LastName.Set {
		cols = append(cols, "last_name")
		args = append(args, u.LastName.Value)
	}
	if u.DateOfBirth.Set {
		cols = append(cols, "dob")
		args = append(args, u.DateOfBirth.Value)
	}
	if u.Phone.Set {
		cols = append(cols, "phone")
		args = append(args, u.Phone.Value)
	}
	if u.Email.Set {
		cols = append(cols, "email")
		args = append(args, u.Email.Value)
	}
	return cols, args
}

// Apply copies the set fields onto p.
func (u PatientUpdate) Apply(p *Patient) {
	if u.FirstName.Set {
		p.FirstName = u.FirstName.Value
	}
	if u.LastName.Set {
		p.LastName = u.LastName.Value
	}
	if u.DateOfBirth.Set {
		p.DateOfBirth = u.DateOfBirth.Value
	}
	if u.Phone.Set {
		p.Phone = u.Phone.Value
	}
	if u.Email.Set {
		p.Email = u.Email.Value
	}
}
