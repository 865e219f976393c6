package validation

// CustomMessage returns the per-tag messages for a request struct field, or
// nil when the field uses the defaults.
func CustomMessage(field string) map[string]string {
	var customValidationMessages = map[string]map[string]string{
		"Email": {
			"required": "email is required",
			"email":    "email must be a valid email address",
		},
		"Phone": {
			"max": "phone must be at most 20 characters",
		},
		"Password": {
			"required": "password is required",
			"min":      "password must be at least 8 characters",
			"max":      "password must be at most 72 characters",
		},
		"PasswordConfirm": {
			"required": "password_confirm is required",
			"eqfield":  "password_confirm must match password",
		},
		"NewPassword": {
			"required": "new_password is required",
			"min":      "new_password must be at least 8 characters",
		},
		"ConfirmPassword": {
			"required": "confirm_password is required",
		},
		"OTP": {
			"required": "otp is required",
			"otp":      "otp must be exactly 6 digits",
		},
		"FirstName": {
			"required": "first_name is required",
		},
		"LastName": {
			"required": "last_name is required",
		},
	}
	return customValidationMessages[field]
}
