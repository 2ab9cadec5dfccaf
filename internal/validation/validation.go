// Package validation holds the form-level checks front ends run before
// calling into the session manager.
package validation

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/Kerhoff/ChoreBoT/internal/familycode"
)

// MinPasswordLength is the shortest password accepted at registration
const MinPasswordLength = 6

// Age bounds for a child profile
const (
	MinAge = 1
	MaxAge = 18
)

var emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)

// Avatars are the preset profile pictures a child can pick
var Avatars = []string{
	"https://images.unsplash.com/photo-1544005313-94ddf0286df2?q=80&w=100",
	"https://images.unsplash.com/photo-1570655652364-2e0a67455ac6?q=80&w=100",
	"https://images.unsplash.com/photo-1531746020798-e6953c6e8e04?q=80&w=100",
	"https://images.unsplash.com/photo-1601288496920-b6154fe3626a?q=80&w=100",
	"https://images.unsplash.com/photo-1599566150163-29194dcaad36?q=80&w=100",
	"https://images.unsplash.com/photo-1535713875002-d1d0cf377fde?q=80&w=100",
	"https://images.unsplash.com/photo-1494790108377-be9c29b29330?q=80&w=100",
}

// FieldError is a problem with one form field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects the field errors of one form. It never reaches
// the session manager.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return strings.Join(msgs, "; ")
}

// Field returns the message of the named field, if it failed
func (e *ValidationError) Field(name string) string {
	for _, f := range e.Fields {
		if f.Field == name {
			return f.Message
		}
	}
	return ""
}

type form struct {
	errs []FieldError
}

func (f *form) fail(field, msg string) {
	f.errs = append(f.errs, FieldError{Field: field, Message: msg})
}

func (f *form) err() error {
	if len(f.errs) == 0 {
		return nil
	}
	return &ValidationError{Fields: f.errs}
}

// Registration checks the parent registration form
func Registration(email, password, confirm, familyName string) error {
	var f form
	checkEmail(&f, email)

	switch {
	case password == "":
		f.fail("password", "Password is required")
	case len(password) < MinPasswordLength:
		f.fail("password", fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	}
	if password != confirm {
		f.fail("confirmPassword", "Passwords do not match")
	}
	if strings.TrimSpace(familyName) == "" {
		f.fail("familyName", "Family name is required")
	}
	return f.err()
}

// Login checks the parent login form
func Login(email, password string) error {
	var f form
	if strings.TrimSpace(email) == "" {
		f.fail("email", "Email is required")
	}
	if password == "" {
		f.fail("password", "Password is required")
	}
	return f.err()
}

func checkEmail(f *form, email string) {
	switch {
	case strings.TrimSpace(email) == "":
		f.fail("email", "Email is required")
	case !emailPattern.MatchString(email):
		f.fail("email", "Email is invalid")
	}
}

// FamilyName checks the name of a new family
func FamilyName(name string) error {
	var f form
	if strings.TrimSpace(name) == "" {
		f.fail("familyName", "Family name is required")
	}
	return f.err()
}

// FamilyCode normalizes a join code and checks its format
func FamilyCode(code string) (string, error) {
	var f form
	normalized := familycode.Normalize(code)
	switch {
	case normalized == "":
		f.fail("familyCode", "Please enter your family code")
	case !familycode.Valid(normalized):
		f.fail("familyCode", "Family code must be 3 letters followed by 3 digits")
	}
	return normalized, f.err()
}

// Child checks the add-child form. ageText may be empty; avatar may be empty
// or one of Avatars.
func Child(name, ageText, avatar string) (*int, error) {
	var f form
	if strings.TrimSpace(name) == "" {
		f.fail("name", "Child name is required")
	}

	var age *int
	if ageText = strings.TrimSpace(ageText); ageText != "" {
		n, err := strconv.Atoi(ageText)
		if err != nil || n < MinAge || n > MaxAge {
			f.fail("age", fmt.Sprintf("Please enter a valid age (%d-%d)", MinAge, MaxAge))
		} else {
			age = &n
		}
	}

	if avatar != "" && !slices.Contains(Avatars, avatar) {
		f.fail("avatar", "Please choose one of the available avatars")
	}

	if err := f.err(); err != nil {
		return nil, err
	}
	return age, nil
}

// Chore checks the create-chore form
func Chore(title string, points int) error {
	var f form
	if strings.TrimSpace(title) == "" {
		f.fail("title", "Chore title is required")
	}
	if points <= 0 {
		f.fail("points", "Points must be greater than zero")
	}
	return f.err()
}

// Reward checks the create-reward form
func Reward(title string, cost int) error {
	var f form
	if strings.TrimSpace(title) == "" {
		f.fail("title", "Reward title is required")
	}
	if cost <= 0 {
		f.fail("cost", "Cost must be greater than zero")
	}
	return f.err()
}
