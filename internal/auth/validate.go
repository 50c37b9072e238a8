package auth

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultMinPasswordLength matches the length the login form has always asked for.
const DefaultMinPasswordLength = 5

// RegisterForm is the input of Register.
type RegisterForm struct {
	Email      string
	Password   string
	FirstName  string
	LastName   string
	RedirectTo string
}

// LoginForm is the input of Login.
type LoginForm struct {
	Email      string
	Password   string
	RedirectTo string
}

// Validator checks form fields without any I/O. Every rule runs; failures
// are reported together.
type Validator struct {
	v           *validator.Validate
	minPassword int
}

func NewValidator(minPasswordLength int) *Validator {
	if minPasswordLength <= 0 {
		minPasswordLength = DefaultMinPasswordLength
	}
	return &Validator{v: validator.New(), minPassword: minPasswordLength}
}

// Email returns a message when email is not an address, "" otherwise.
func (v *Validator) Email(email string) string {
	if v.v.Var(email, "required,email") != nil {
		return "Please enter a valid email address"
	}
	return ""
}

// Password returns a message when password is shorter than the minimum.
func (v *Validator) Password(password string) string {
	if v.v.Var(password, fmt.Sprintf("min=%d", v.minPassword)) != nil {
		return fmt.Sprintf("Please enter a password that is at least %d characters long", v.minPassword)
	}
	return ""
}

// Name returns a message when name is blank.
func (v *Validator) Name(name string) string {
	if v.v.Var(strings.TrimSpace(name), "required") != nil {
		return "Please enter a value"
	}
	return ""
}

func (v *Validator) ValidateLogin(f LoginForm) error {
	return collect(map[string]string{
		"email":    v.Email(f.Email),
		"password": v.Password(f.Password),
	})
}

func (v *Validator) ValidateRegister(f RegisterForm) error {
	return collect(map[string]string{
		"email":     v.Email(f.Email),
		"password":  v.Password(f.Password),
		"firstName": v.Name(f.FirstName),
		"lastName":  v.Name(f.LastName),
	})
}

func collect(results map[string]string) error {
	fields := make(map[string]string)
	for k, msg := range results {
		if msg != "" {
			fields[k] = msg
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}
