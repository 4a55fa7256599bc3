package gateway

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/skuznetsov/authcore/internal/authcore"
	"github.com/skuznetsov/authcore/internal/userstore"
)

// Gateway is the boundary component: it accepts inbound identity assertions
// and delivers token responses. Every trust decision is delegated to the
// token service.
type Gateway struct {
	configuration ServerConfig
	validator     authcore.GoogleTokenValidator
	normalizer    *authcore.IdentityNormalizer
	tokens        *authcore.TokenService
	codec         *authcore.TokenCodec
	users         userstore.UserStore
	logger        *zap.Logger
	metrics       authcore.MetricsRecorder
}

// NewGateway wires the gateway with its collaborators.
func NewGateway(configuration ServerConfig, validator authcore.GoogleTokenValidator, normalizer *authcore.IdentityNormalizer, tokens *authcore.TokenService, codec *authcore.TokenCodec, users userstore.UserStore, logger *zap.Logger, metrics authcore.MetricsRecorder) *Gateway {
	if validator == nil {
		panic("google token validator is required")
	}
	if normalizer == nil {
		panic("identity normalizer is required")
	}
	if tokens == nil {
		panic("token service is required")
	}
	if codec == nil {
		panic("token codec is required")
	}
	if users == nil {
		panic("user store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = authcore.NewCounterMetrics()
	}
	return &Gateway{
		configuration: configuration,
		validator:     validator,
		normalizer:    normalizer,
		tokens:        tokens,
		codec:         codec,
		users:         users,
		logger:        logger,
		metrics:       metrics,
	}
}

// MountRoutes registers /auth/google, /auth/refresh, /auth/logout, and the
// access-token-protected /users group.
func (gateway *Gateway) MountRoutes(router gin.IRouter) {
	router.POST("/auth/google", gateway.handleGoogleLogin)
	router.POST("/auth/refresh", gateway.handleRefresh)
	router.POST("/auth/logout", gateway.handleLogout)

	protected := router.Group("/users")
	protected.Use(gateway.RequireAccessToken())
	protected.GET("/me", gateway.handleMe)
	protected.POST("/logout-all", gateway.handleLogoutAll)
}

func (gateway *Gateway) handleGoogleLogin(contextGin *gin.Context) {
	var inbound struct {
		GoogleIDToken string `json:"google_id_token"`
	}
	if bindErr := contextGin.BindJSON(&inbound); bindErr != nil || strings.TrimSpace(inbound.GoogleIDToken) == "" {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}

	if !gateway.configuration.AllowInsecureHTTP && !isHTTPS(contextGin.Request) {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "https_required"})
		return
	}

	payload, validateErr := gateway.validator.Validate(contextGin, inbound.GoogleIDToken, gateway.configuration.GoogleWebClientID)
	if validateErr != nil {
		gateway.metrics.Increment("login.unauthorized")
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_google_token"})
		return
	}
	profile, profileErr := authcore.ProfileFromGooglePayload(payload)
	if profileErr != nil {
		gateway.metrics.Increment("login.unauthorized")
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unverified_identity"})
		return
	}

	resolvedUser, resolveErr := gateway.normalizer.ResolveUser(contextGin, profile)
	if resolveErr != nil {
		gateway.logger.Error("user resolution failed",
			zap.String("code", "gateway.login.resolve"),
			zap.Error(resolveErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	tokenPair, issueErr := gateway.tokens.IssueTokens(contextGin, resolvedUser, contextGin.ClientIP())
	if issueErr != nil {
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	gateway.writeRefreshCookie(contextGin, tokenPair.RefreshToken, tokenPair.RefreshExpiresAt)
	gateway.metrics.Increment("login.success")

	// The browser callback flow lands the client back on the application with
	// the access token in the query string; API clients get a JSON body.
	if contextGin.Query("redirect") == "1" {
		redirectTarget := fmt.Sprintf("%s?token=%s", gateway.configuration.ClientURL, url.QueryEscape(tokenPair.AccessToken))
		contextGin.Redirect(http.StatusFound, redirectTarget)
		return
	}

	contextGin.JSON(http.StatusOK, gin.H{
		"access_token": tokenPair.AccessToken,
		"expires":      tokenPair.AccessExpiresAt,
		"user": gin.H{
			"id":         resolvedUser.ID,
			"email":      resolvedUser.Email,
			"first_name": resolvedUser.FirstName,
			"last_name":  resolvedUser.LastName,
			"avatar_url": resolvedUser.AvatarURL,
		},
	})
}

func (gateway *Gateway) handleRefresh(contextGin *gin.Context) {
	refreshCookie, cookieErr := contextGin.Request.Cookie(gateway.configuration.RefreshCookieName)
	if cookieErr != nil || refreshCookie == nil || strings.TrimSpace(refreshCookie.Value) == "" {
		contextGin.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	tokenPair, _, refreshErr := gateway.tokens.RefreshTokens(contextGin, refreshCookie.Value, contextGin.ClientIP())
	if refreshErr != nil {
		if errors.Is(refreshErr, authcore.ErrStorageUnavailable) {
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		// No cause in the body: expired, forged, and revoked all look alike.
		contextGin.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	gateway.writeRefreshCookie(contextGin, tokenPair.RefreshToken, tokenPair.RefreshExpiresAt)
	contextGin.JSON(http.StatusOK, gin.H{
		"access_token": tokenPair.AccessToken,
		"expires":      tokenPair.AccessExpiresAt,
	})
}

func (gateway *Gateway) handleLogout(contextGin *gin.Context) {
	gateway.clearRefreshCookie(contextGin)
	contextGin.Status(http.StatusNoContent)
}

func (gateway *Gateway) handleLogoutAll(contextGin *gin.Context) {
	claims := accessClaimsFromContext(contextGin)
	if claims == nil {
		contextGin.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	// The access token used for this call stays valid until its own short
	// expiry; only refresh tokens are invalidated.
	if _, revokeErr := gateway.tokens.RevokeAll(contextGin, claims.Subject); revokeErr != nil {
		if errors.Is(revokeErr, authcore.ErrUserNotFound) {
			contextGin.AbortWithStatus(http.StatusNotFound)
			return
		}
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	gateway.clearRefreshCookie(contextGin)
	contextGin.JSON(http.StatusOK, gin.H{"success": true})
}

func (gateway *Gateway) handleMe(contextGin *gin.Context) {
	claims := accessClaimsFromContext(contextGin)
	if claims == nil {
		contextGin.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	currentUser, findErr := gateway.users.FindByID(contextGin, claims.Subject)
	if findErr != nil {
		if errors.Is(findErr, userstore.ErrUserNotFound) {
			contextGin.AbortWithStatus(http.StatusNotFound)
			return
		}
		gateway.logger.Error("user profile lookup error",
			zap.String("code", "gateway.me.lookup"),
			zap.String("user_id", claims.Subject),
			zap.Error(findErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	contextGin.JSON(http.StatusOK, gin.H{
		"id":         currentUser.ID,
		"email":      currentUser.Email,
		"first_name": currentUser.FirstName,
		"last_name":  currentUser.LastName,
		"avatar_url": currentUser.AvatarURL,
	})
}

func (gateway *Gateway) writeRefreshCookie(contextGin *gin.Context, refreshToken string, expiresAt time.Time) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     gateway.configuration.RefreshCookieName,
		Value:    refreshToken,
		Path:     "/auth",
		Domain:   gateway.configuration.CookieDomain,
		Expires:  expiresAt,
		Secure:   true,
		HttpOnly: true,
		SameSite: gateway.configuration.SameSiteMode,
	})
}

func (gateway *Gateway) clearRefreshCookie(contextGin *gin.Context) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     gateway.configuration.RefreshCookieName,
		Value:    "",
		Path:     "/auth",
		Domain:   gateway.configuration.CookieDomain,
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: gateway.configuration.SameSiteMode,
	})
}

func isHTTPS(request *http.Request) bool {
	if request.TLS != nil {
		return true
	}
	scheme := request.Header.Get("X-Forwarded-Proto")
	if strings.EqualFold(scheme, "https") {
		return true
	}
	forwarded := request.Header.Get("Forwarded")
	if forwarded != "" && strings.Contains(strings.ToLower(forwarded), "proto=https") {
		return true
	}
	host, _, splitErr := net.SplitHostPort(request.Host)
	if splitErr == nil && host == "localhost" {
		return true
	}
	return false
}
