package router

import "github.com/gin-gonic/gin"

func (r *Router) oauthRoutes(version *gin.RouterGroup) {
	oauth := version.Group("/auth/oauth")
	{
		oauth.GET("/providers", r.oauthHandler.Providers)

		// Telegram has no authorize step; the widget posts straight to us
		oauth.POST("/telegram", r.credentialLimit(), r.oauthHandler.TelegramLogin)
		oauth.GET("/telegram/callback", r.credentialLimit(), r.oauthHandler.TelegramCallback)

		oauth.GET("/accounts", append(r.authenticated(), r.oauthHandler.Accounts)...)

		oauth.GET("/:provider", r.oauthHandler.Authorize)
		oauth.GET("/:provider/callback", r.oauthHandler.Callback)
		// Apple answers with response_mode=form_post
		oauth.POST("/:provider/callback", r.oauthHandler.Callback)

		oauth.DELETE("/:provider/unlink", append(r.authenticated(), r.oauthHandler.Unlink)...)
		oauth.POST("/:provider/refresh", append(r.authenticated(), r.oauthHandler.RefreshProviderToken)...)
	}
}
