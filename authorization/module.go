package authorization

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	jwt "github.com/appleboy/gin-jwt/v2"
	"github.com/gin-gonic/gin"
)

const (
	identityKey    = "user_id"
	defaultTimeout = time.Hour
)

// AuthenticatedUser is the identity resolved from the external provider's
// token. It is placed on the gin context once per request; downstream modules
// read it through CurrentUser instead of re-querying the provider.
type AuthenticatedUser struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
}

// ErrAuthRequired reports that no authenticated user is attached to the
// current request context.
var ErrAuthRequired = errors.New("authorization: authentication required")

// Module validates bearer tokens minted by the external identity provider.
// It owns no user records: account management, login and password flows all
// live with the provider.
type Module struct {
	jwtMiddleware *jwt.GinJWTMiddleware
}

// RegisterRoutes wires the identity guard and mounts /auth/me.
func RegisterRoutes(router *gin.Engine) (*Module, error) {
	middleware, err := buildJWTMiddleware()
	if err != nil {
		return nil, err
	}

	module := &Module{jwtMiddleware: middleware}

	group := router.Group("/auth")
	group.GET("/me", module.Guard().RequireAuthenticated(), handleMe)

	return module, nil
}

func buildJWTMiddleware() (*jwt.GinJWTMiddleware, error) {
	secret := strings.TrimSpace(os.Getenv("AUTH_JWT_SECRET"))
	if secret == "" {
		return nil, errors.New("authorization: AUTH_JWT_SECRET environment variable is required")
	}

	realm := strings.TrimSpace(os.Getenv("AUTH_JWT_REALM"))
	if realm == "" {
		realm = "horizon"
	}

	return jwt.New(&jwt.GinJWTMiddleware{
		Realm:       realm,
		Key:         []byte(secret),
		Timeout:     defaultTimeout,
		IdentityKey: identityKey,
		IdentityHandler: func(c *gin.Context) interface{} {
			claims := jwt.ExtractClaims(c)
			id := extractUserID(claims)
			if id == 0 {
				return nil
			}
			email, _ := claims["email"].(string)
			return &AuthenticatedUser{ID: id, Email: email}
		},
		Authorizator: func(data interface{}, c *gin.Context) bool {
			user, ok := data.(*AuthenticatedUser)
			return ok && user != nil && user.ID != 0
		},
		Unauthorized: func(c *gin.Context, code int, message string) {
			c.JSON(code, gin.H{"error": message})
		},
	})
}

func handleMe(c *gin.Context) {
	user, err := CurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// CurrentUser returns the identity resolved by the guard for this request.
func CurrentUser(c *gin.Context) (*AuthenticatedUser, error) {
	value, ok := c.Get(identityKey)
	if !ok {
		return nil, ErrAuthRequired
	}
	user, ok := value.(*AuthenticatedUser)
	if !ok || user == nil || user.ID == 0 {
		return nil, ErrAuthRequired
	}
	return user, nil
}

func extractUserID(claims jwt.MapClaims) uint64 {
	idValue, ok := claims[identityKey]
	if !ok {
		return 0
	}
	switch v := idValue.(type) {
	case float64:
		if v <= 0 {
			return 0
		}
		return uint64(v)
	case int64:
		if v <= 0 {
			return 0
		}
		return uint64(v)
	case uint64:
		return v
	case int:
		if v <= 0 {
			return 0
		}
		return uint64(v)
	case string:
		parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
