package dto

type SignupRequest struct {
	Email     string `json:"email" binding:"required,email,max=255"`
	Password  string `json:"password" binding:"required,min=8,max=72"`
	FirstName string `json:"first_name" binding:"required,max=100"`
	LastName  string `json:"last_name" binding:"required,max=100"`
	Phone     string `json:"phone" binding:"omitempty,max=20"`
}

type SignupResponse struct {
	User         *UserResponse `json:"user"`
	SessionToken string        `json:"session_token"`
	RequiresOTP  bool          `json:"requires_otp"`
	OTPCode      string        `json:"otp_code,omitempty"`
}

type VerifyOTPRequest struct {
	OTP string `json:"otp" binding:"required,otp"`
}

type ResendOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResendOTPResponse struct {
	OTPSent bool   `json:"otp_sent"`
	OTPCode string `json:"otp_code,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse is returned by every endpoint that ends in a login. The
// refresh token travels in an http-only cookie and is only echoed in the
// body for clients that cannot hold cookies.
type LoginResponse struct {
	User         *UserResponse `json:"user"`
	Token        string        `json:"token"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	ExpiresIn    int           `json:"expires_in"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8,max=72"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ForgotPasswordResponse struct {
	EmailSent bool `json:"email_sent"`
}

type VerifyResetOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
	OTP   string `json:"otp" binding:"required,otp"`
}

type VerifyResetOTPResponse struct {
	OTPVerified  bool   `json:"otp_verified"`
	SessionToken string `json:"session_token"`
}

type ResetPasswordRequest struct {
	Password        string `json:"password" binding:"required,min=8,max=72"`
	PasswordConfirm string `json:"password_confirm" binding:"required"`
}

type ResetPasswordResponse struct {
	PasswordUpdated bool   `json:"password_updated"`
	Token           string `json:"token"`
}
