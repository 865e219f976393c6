package router

import (
	"github.com/Payphone-Digital/auth-service/internal/dto"
	"github.com/Payphone-Digital/auth-service/internal/middleware"
	"github.com/gin-gonic/gin"
)

func (r *Router) authRoutes(version *gin.RouterGroup) {
	auth := version.Group("/auth")
	{
		// Public routes with credentials, stricter rate limit
		credentials := auth.Group("")
		credentials.Use(r.credentialLimit())
		{
			signup := middleware.ValidateRequestBody[dto.SignupRequest]()
			credentials.POST("/signup", signup, r.authHandler.Signup)
			credentials.POST("/register", signup, r.authHandler.Signup)

			credentials.POST("/verify-otp", middleware.ValidateRequestBody[dto.VerifyOTPRequest](), r.authHandler.VerifyOTP)
			credentials.POST("/resend-otp", middleware.ValidateRequestBody[dto.ResendOTPRequest](), r.authHandler.ResendOTP)
			credentials.POST("/login", middleware.ValidateRequestBody[dto.LoginRequest](), r.authHandler.Login)

			// Password reset, three steps
			credentials.POST("/forgot-password", middleware.ValidateRequestBody[dto.ForgotPasswordRequest](), r.authHandler.ForgotPassword)
			credentials.POST("/forgot-password/verify-otp", middleware.ValidateRequestBody[dto.VerifyResetOTPRequest](), r.authHandler.VerifyResetOTP)
			credentials.POST("/reset-password", middleware.ValidateRequestBody[dto.ResetPasswordRequest](), r.authHandler.ResetPassword)
		}

		auth.POST("/refresh", r.authHandler.Refresh)

		// Protected routes
		auth.POST("/logout", append(r.authenticated(), r.authHandler.Logout)...)
		auth.POST("/change-password", append(r.authenticated(),
			middleware.ValidateRequestBody[dto.ChangePasswordRequest](),
			r.authHandler.ChangePassword,
		)...)
		auth.GET("/me", append(r.authenticated(middleware.RequireVerified(), middleware.RequireActive()), r.authHandler.Me)...)
	}
}
