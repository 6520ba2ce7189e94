package mockapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vmdash.io/vmdash/internal/api/middleware"
	"vmdash.io/vmdash/internal/domain"
	apperrors "vmdash.io/vmdash/internal/pkg/errors"
)

type loginRequest struct {
	Username string `json:"Username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"Username"`
	Password string `json:"password"`
	Prenom   string `json:"Prenom"`
	Nom      string `json:"Nom"`
}

// register handles POST /api/register.
func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Bad Request: Could not parse JSON data"})
		return
	}
	for _, f := range []struct{ name, value string }{
		{"Nom", req.Nom}, {"Prenom", req.Prenom}, {"Username", req.Username}, {"password", req.Password},
	} {
		if f.value == "" {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Missing required field: " + f.name})
			return
		}
	}

	user := domain.User{Username: req.Username, FirstName: req.Prenom, LastName: req.Nom}
	if err := s.store.AddUser(user, req.Password); err != nil {
		if appErr, ok := apperrors.IsAppError(err); ok && appErr.HTTPStatus == http.StatusConflict {
			c.JSON(http.StatusConflict, gin.H{"message": appErr.Message})
			return
		}
		s.log.Error("register failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Registration failed due to server error"})
		return
	}
	s.log.Info("user registered", zap.String("username", req.Username))
	c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully"})
}

// login handles POST /api/login and sets the session cookies.
func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Bad Request: Could not parse JSON data"})
		return
	}
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing username or password"})
		return
	}
	if !s.store.Authenticate(req.Username, req.Password) {
		s.log.Warn("login failed: invalid credentials", zap.String("username", req.Username))
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
		return
	}

	token, csrf, expiresAt, err := middleware.GenerateToken(s.jwtCfg, req.Username)
	if err != nil {
		s.log.Error("failed to generate token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Login failed"})
		return
	}
	setSessionCookies(c, token, csrf, expiresAt)
	c.JSON(http.StatusOK, gin.H{"message": "Login successful"})
}

// logout handles GET /logout. It needs no valid session.
func (s *Server) logout(c *gin.Context) {
	clearSessionCookies(c)
	c.JSON(http.StatusOK, gin.H{"msg": "Logout successful"})
}

// profile handles GET /api/profile.
func (s *Server) profile(c *gin.Context) {
	username := middleware.GetUsername(c.Request.Context())
	user, ok := s.store.User(username)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"logged_in_as": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logged_in_as": user})
}

func setSessionCookies(c *gin.Context, token, csrf string, expiresAt time.Time) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     middleware.CSRFAccessCookie,
		Value:    csrf,
		Path:     "/",
		Expires:  expiresAt,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookies(c *gin.Context) {
	for _, name := range []string{middleware.AccessTokenCookie, middleware.CSRFAccessCookie} {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: name == middleware.AccessTokenCookie,
		})
	}
}
