package command

import (
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestValidator_RegisterUser(t *testing.T) {
	v := NewValidator()

	valid := RegisterUser{
		UserName:        "alice.smith",
		Email:           "alice@example.com",
		Password:        "Str0ng!pw",
		ConfirmPassword: "Str0ng!pw",
		FirstName:       "Alice",
		LastName:        "Smith",
	}
	if violations := v.Validate(valid); violations != nil {
		t.Fatalf("expected valid payload, got %v", violations)
	}

	long := strings.Repeat("a", 501)
	cases := []struct {
		name   string
		mutate func(*RegisterUser)
		want   string
	}{
		{"missing username", func(c *RegisterUser) { c.UserName = "" }, "Username is required"},
		{"short username", func(c *RegisterUser) { c.UserName = "al" }, "Username must be at least 3 characters"},
		{"long username", func(c *RegisterUser) { c.UserName = strings.Repeat("a", 51) }, "Username must not exceed 50 characters"},
		{"username charset", func(c *RegisterUser) { c.UserName = "alice smith" }, "Username can only contain letters, numbers, and the characters _.-"},
		{"bad email", func(c *RegisterUser) { c.Email = "alice" }, "A valid email is required"},
		{"confirmation mismatch", func(c *RegisterUser) { c.ConfirmPassword = "other" }, "Passwords do not match"},
		{"missing first name", func(c *RegisterUser) { c.FirstName = "" }, "First name is required"},
		{"long address", func(c *RegisterUser) { c.Address = &long }, "Address must not exceed 500 characters"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := valid
			tc.mutate(&cmd)
			violations := v.Validate(cmd)
			if len(violations) != 1 || violations[0] != tc.want {
				t.Fatalf("expected [%s], got %v", tc.want, violations)
			}
		})
	}
}

func TestValidator_ChangePasswordMustDiffer(t *testing.T) {
	v := NewValidator()

	violations := v.Validate(ChangePassword{
		UserID:          "acc-1",
		CurrentPassword: "Str0ng!pw",
		NewPassword:     "Str0ng!pw",
		ConfirmPassword: "Str0ng!pw",
	})
	if len(violations) != 1 || violations[0] != "New password must be different from current password" {
		t.Fatalf("unexpected violations %v", violations)
	}
}

func TestValidator_ReportsEveryField(t *testing.T) {
	violations := NewValidator().Validate(LoginUser{})
	if len(violations) != 2 {
		t.Fatalf("expected two violations, got %v", violations)
	}
	if violations[0] != "Username is required" || violations[1] != "Password is required" {
		t.Fatalf("unexpected order %v", violations)
	}
}

func TestValidator_ListUsersBounds(t *testing.T) {
	v := NewValidator()
	if violations := v.Validate(ListUsers{Limit: 101}); len(violations) != 1 {
		t.Fatalf("expected limit violation, got %v", violations)
	}
	if violations := v.Validate(ListUsers{Offset: -1}); len(violations) != 1 {
		t.Fatalf("expected offset violation, got %v", violations)
	}
}

func TestValidator_PanicsOnUnregistrableRule(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for an empty rule tag")
		}
	}()
	newValidator(map[string]validator.Func{"": func(validator.FieldLevel) bool { return true }})
}

func TestValidator_ResetPasswordConfirmation(t *testing.T) {
	v := NewValidator()

	base := ResetPassword{UserID: "acc-1", Token: "token", NewPassword: "R3set!pass"}
	if violations := v.Validate(base); violations != nil {
		t.Fatalf("expected payload without confirmation to be valid, got %v", violations)
	}

	base.ConfirmPassword = "R3set!other"
	violations := v.Validate(base)
	if len(violations) != 1 || violations[0] != "Passwords do not match" {
		t.Fatalf("unexpected violations %v", violations)
	}
}
