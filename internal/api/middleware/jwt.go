package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Cookie names used by the backend for the session tokens.
const (
	AccessTokenCookie = "access_token_cookie"
	CSRFAccessCookie  = "csrf_access_token"
)

// Messages returned in the {"msg": ...} body of rejected tokens.
const (
	MsgTokenMissing   = "Authorization token is required"
	MsgTokenExpired   = "Token has expired"
	MsgTokenInvalid   = "Invalid token. Please log in again."
	MsgTokenDecode    = "Token decode error. Please log in again."
	MsgHeaderPadding  = "Invalid header padding"
	MsgSubjectInvalid = "Subject must be a string"
)

// ErrJWTSigningKeyMissing is returned when no signing key is configured.
var ErrJWTSigningKeyMissing = errors.New("jwt signing key is missing")

// TokenClaims are the access token claims. The subject is the username.
type TokenClaims struct {
	CSRF string `json:"csrf,omitempty"`
	jwt.RegisteredClaims
}

// JWTConfig holds JWT signing configuration.
type JWTConfig struct {
	SigningKey []byte
	Issuer     string
	ExpiresIn  time.Duration
}

// GenerateToken creates a signed access token for username. The returned
// csrf value is also stored in the token.
func GenerateToken(cfg JWTConfig, username string) (token, csrf string, expiresAt time.Time, err error) {
	if len(cfg.SigningKey) == 0 {
		return "", "", time.Time{}, ErrJWTSigningKeyMissing
	}
	now := time.Now()
	expiresAt = now.Add(cfg.ExpiresIn)
	csrf = uuid.NewString()
	jti, _ := uuid.NewV7()

	claims := TokenClaims{
		CSRF: csrf,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti.String(),
			Issuer:    cfg.Issuer,
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.SigningKey)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, csrf, expiresAt, nil
}

// ValidateToken parses and verifies tokenString.
func (cfg JWTConfig) ValidateToken(tokenString string) (*TokenClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if len(cfg.SigningKey) == 0 {
			return nil, ErrJWTSigningKeyMissing
		}
		return cfg.SigningKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// rejection maps a token error to the backend's status and msg.
func rejection(err error) (int, string) {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return http.StatusUnauthorized, MsgTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return http.StatusUnprocessableEntity, MsgHeaderPadding
	case errors.Is(err, jwt.ErrTokenInvalidSubject):
		return http.StatusUnprocessableEntity, MsgSubjectInvalid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return http.StatusUnprocessableEntity, MsgTokenDecode
	default:
		return http.StatusUnauthorized, MsgTokenInvalid
	}
}

// CookieAuth validates the access token cookie and stores the username in
// the request context. Rejections use the {"msg": ...} body.
func CookieAuth(cfg JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := c.Cookie(AccessTokenCookie)
		if err != nil || tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": MsgTokenMissing})
			return
		}

		claims, err := cfg.ValidateToken(tokenString)
		if err != nil {
			status, msg := rejection(err)
			c.AbortWithStatusJSON(status, gin.H{"msg": msg})
			return
		}
		if claims.Subject == "" {
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"msg": MsgSubjectInvalid})
			return
		}

		c.Set(string(ctxKeyUsername), claims.Subject)
		c.Request = c.Request.WithContext(SetUsername(c.Request.Context(), claims.Subject))
		c.Next()
	}
}
