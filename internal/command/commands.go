package command

import "time"

// RegisterUser is the registration payload.
type RegisterUser struct {
	UserName        string  `json:"userName" label:"Username" validate:"required,min=3,max=50,username"`
	Email           string  `json:"email" label:"Email" validate:"required,email"`
	Password        string  `json:"password" label:"Password" validate:"required"`
	ConfirmPassword string  `json:"confirmPassword" label:"Confirm password" validate:"eqfield=Password"`
	FirstName       string  `json:"firstName" label:"First name" validate:"required,max=100"`
	LastName        string  `json:"lastName" label:"Last name" validate:"required,max=100"`
	Address         *string `json:"address,omitempty" label:"Address" validate:"omitempty,max=500"`
}

// LoginUser is the login payload.
type LoginUser struct {
	UserName   string `json:"userName" label:"Username" validate:"required"`
	Password   string `json:"password" label:"Password" validate:"required"`
	RememberMe bool   `json:"rememberMe"`
}

// UpdateProfile replaces the mutable profile fields of an account. A nil IsActive keeps the
// account active.
type UpdateProfile struct {
	ID        string  `json:"id" label:"User ID" validate:"required"`
	FirstName string  `json:"firstName" label:"First name" validate:"required,max=100"`
	LastName  string  `json:"lastName" label:"Last name" validate:"required,max=100"`
	Email     string  `json:"email" label:"Email" validate:"required,email"`
	Address   *string `json:"address,omitempty" label:"Address" validate:"omitempty,max=500"`
	IsActive  *bool   `json:"isActive,omitempty"`
}

// ChangePassword replaces the password of a signed-in account.
type ChangePassword struct {
	UserID          string `json:"userId" label:"User ID" validate:"required"`
	CurrentPassword string `json:"currentPassword" label:"Current password" validate:"required"`
	NewPassword     string `json:"newPassword" label:"New password" validate:"required,nefield=CurrentPassword"`
	ConfirmPassword string `json:"confirmPassword,omitempty" label:"Confirm password" validate:"omitempty,eqfield=NewPassword"`
}

// ResetPassword consumes a password reset token.
type ResetPassword struct {
	UserID          string `json:"userId" label:"User ID" validate:"required"`
	Token           string `json:"token" label:"Token" validate:"required"`
	NewPassword     string `json:"newPassword" label:"New password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword,omitempty" label:"Confirm password" validate:"omitempty,eqfield=NewPassword"`
}

// ForgotPassword requests a reset link for an email.
type ForgotPassword struct {
	Email string `json:"email" label:"Email" validate:"required,email"`
}

// ConfirmEmail consumes an email confirmation token.
type ConfirmEmail struct {
	UserID string `json:"userId" label:"User ID" validate:"required"`
	Token  string `json:"token" label:"Token" validate:"required"`
}

// ListUsers filters the account listing.
type ListUsers struct {
	Role         string     `form:"role" label:"Role" validate:"omitempty,max=256"`
	Inactive     bool       `form:"inactive"`
	CreatedAfter *time.Time `form:"created_after" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit        int        `form:"limit" label:"Limit" validate:"gte=0,lte=100"`
	Offset       int        `form:"offset" label:"Offset" validate:"gte=0"`
}
