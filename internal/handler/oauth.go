package handler

import (
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Payphone-Digital/auth-service/config"
	"github.com/Payphone-Digital/auth-service/internal/constants"
	"github.com/Payphone-Digital/auth-service/internal/dto"
	apperrors "github.com/Payphone-Digital/auth-service/internal/errors"
	"github.com/Payphone-Digital/auth-service/internal/oauth"
	"github.com/Payphone-Digital/auth-service/internal/service"
	ctxutil "github.com/Payphone-Digital/auth-service/pkg/context"
	"github.com/Payphone-Digital/auth-service/pkg/cookie"
	"github.com/Payphone-Digital/auth-service/pkg/logger"
	"github.com/gin-gonic/gin"
)

const maxTelegramPayload = 16 << 10

type OAuthHandler struct {
	oauthService *service.OAuthService
	session      sessionWriter
	stateTTL     time.Duration
}

func NewOAuthHandler(oauthService *service.OAuthService, jar *cookie.Jar, cookies config.CookieConfig, stateTTL time.Duration) *OAuthHandler {
	if stateTTL <= 0 {
		stateTTL = 15 * time.Minute
	}
	return &OAuthHandler{
		oauthService: oauthService,
		session:      sessionWriter{jar: jar, cookies: cookies},
		stateTTL:     stateTTL,
	}
}

func (h *OAuthHandler) Providers(c *gin.Context) {
	c.JSON(http.StatusOK, dto.ProvidersResponse{Providers: h.oauthService.Providers()})
}

// Authorize stores the state in a cookie and sends the browser to the
// provider's consent page.
func (h *OAuthHandler) Authorize(c *gin.Context) {
	ctx := ctxutil.WithFunction(c.Request.Context(), "handler", "OAuthAuthorize")

	result, err := h.oauthService.Authorize(ctx, c.Param("provider"), c.Query("redirect_url"))
	if err != nil {
		respondError(c, err)
		return
	}

	// a form_post callback is a cross-site POST; Strict or Lax cookies would not come back
	if result.FormPost {
		err = h.session.jar.SetCrossSite(c.Writer, constants.CookieOAuthState, result.StateCookie, h.stateTTL)
	} else {
		err = h.session.jar.Set(c.Writer, constants.CookieOAuthState, result.StateCookie, h.stateTTL)
	}
	if err != nil {
		logger.ErrorWithContext(ctx, "OAuth state cookie not set").
			String("provider", result.Provider).
			Err(err).
			Log()
		respondError(c, apperrors.WrapError(apperrors.ErrInternal, err))
		return
	}

	logger.InfoWithContext(ctx, "OAuth authorization started").
		String("provider", result.Provider).
		Log()
	c.Redirect(http.StatusFound, result.URL)
}

// Callback handles both the query callback and Apple's form_post.
func (h *OAuthHandler) Callback(c *gin.Context) {
	ctx := ctxutil.WithFunction(c.Request.Context(), "handler", "OAuthCallback")

	var q dto.OAuthCallbackQuery
	if err := c.ShouldBind(&q); err != nil {
		respondError(c, apperrors.WrapError(apperrors.ErrInvalidInput, err))
		return
	}

	stateCookie := cookie.Get(c.Request, constants.CookieOAuthState)
	h.session.jar.Clear(c.Writer, constants.CookieOAuthState)

	result, err := h.oauthService.Callback(ctx, service.CallbackInput{
		Provider:         c.Param("provider"),
		Code:             q.Code,
		State:            q.State,
		Error:            q.Error,
		ErrorDescription: q.ErrorDescription,
		StateCookie:      stateCookie,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.finish(c, result)
}

// TelegramLogin accepts the login widget payload as JSON.
func (h *OAuthHandler) TelegramLogin(c *gin.Context) {
	ctx := ctxutil.WithFunction(c.Request.Context(), "handler", "TelegramLogin")

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxTelegramPayload))
	if err != nil {
		respondError(c, apperrors.WrapError(apperrors.ErrInvalidInput, err))
		return
	}
	data, err := oauth.ParseTelegramJSON(body)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.oauthService.TelegramLogin(ctx, data)
	if err != nil {
		respondError(c, err)
		return
	}
	h.finish(c, result)
}

// TelegramCallback accepts the widget payload as query parameters.
func (h *OAuthHandler) TelegramCallback(c *gin.Context) {
	ctx := ctxutil.WithFunction(c.Request.Context(), "handler", "TelegramCallback")

	data := make(map[string]string)
	for k, v := range c.Request.URL.Query() {
		if len(v) > 0 {
			data[k] = v[0]
		}
	}

	result, err := h.oauthService.TelegramLogin(ctx, data)
	if err != nil {
		respondError(c, err)
		return
	}
	h.finish(c, result)
}

func (h *OAuthHandler) finish(c *gin.Context, result *service.OAuthLoginResult) {
	ctx := c.Request.Context()
	h.session.issue(ctx, c, result.Tokens)

	if result.RedirectURL != "" {
		target, err := withTokens(result.RedirectURL, result.Tokens)
		if err == nil {
			status := http.StatusFound
			if c.Request.Method == http.MethodPost {
				status = http.StatusSeeOther
			}
			c.Redirect(status, target)
			return
		}
		logger.WarnWithContext(ctx, "OAuth redirect URL unusable, answering with JSON").
			Err(err).
			Log()
	}

	c.JSON(http.StatusOK, dto.OAuthLoginResponse{
		User:      dto.NewUserResponse(result.User),
		Token:     result.Tokens.AccessToken,
		ExpiresIn: int(result.Tokens.AccessTTL.Seconds()),
		Provider:  result.Provider,
		IsNewUser: result.IsNewUser,
	})
}

func withTokens(raw string, tokens *service.LoginTokens) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", tokens.AccessToken)
	q.Set("refresh_token", tokens.RefreshToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (h *OAuthHandler) Accounts(c *gin.Context) {
	ctx := ctxutil.WithFunction(c.Request.Context(), "handler", "OAuthAccounts")

	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, apperrors.ErrAuthRequired)
		return
	}

	accounts, err := h.oauthService.Accounts(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, constants.BuildDataResponse("Linked accounts", dto.NewOAuthAccountsResponse(accounts)))
}

func (h *OAuthHandler) Unlink(c *gin.Context) {
	ctx := ctxutil.WithFunction(c.Request.Context(), "handler", "OAuthUnlink")

	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, apperrors.ErrAuthRequired)
		return
	}

	if err := h.oauthService.Unlink(ctx, userID, c.Param("provider")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, constants.BuildSuccessResponse("OAuth account unlinked"))
}

// RefreshProviderToken renews the stored provider token of a linked account.
func (h *OAuthHandler) RefreshProviderToken(c *gin.Context) {
	ctx := ctxutil.WithFunction(c.Request.Context(), "handler", "RefreshProviderToken")

	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, apperrors.ErrAuthRequired)
		return
	}

	account, err := h.oauthService.RefreshProviderToken(ctx, userID, c.Param("provider"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, constants.BuildDataResponse("Provider token refreshed", dto.NewOAuthAccountResponse(account)))
}
