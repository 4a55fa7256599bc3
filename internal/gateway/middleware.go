package gateway

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/skuznetsov/authcore/internal/authcore"
)

const accessClaimsContextKey = "auth_claims"

// RequireAccessToken validates the bearer access token and injects its
// claims into the request context.
func (gateway *Gateway) RequireAccessToken() gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		tokenText := bearerToken(contextGin.Request)
		if tokenText == "" {
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		claims, verifyErr := gateway.codec.VerifyAccessToken(tokenText)
		if verifyErr != nil {
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		contextGin.Set(accessClaimsContextKey, claims)
		contextGin.Next()
	}
}

func accessClaimsFromContext(contextGin *gin.Context) *authcore.AccessClaims {
	claimsValue, found := contextGin.Get(accessClaimsContextKey)
	if !found {
		return nil
	}
	claims, ok := claimsValue.(*authcore.AccessClaims)
	if !ok || claims == nil || claims.Subject == "" {
		return nil
	}
	return claims
}

func bearerToken(request *http.Request) string {
	authorization := request.Header.Get("Authorization")
	if authorization == "" {
		return ""
	}
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authorization, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(authorization[len(bearerPrefix):])
}
