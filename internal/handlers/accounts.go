package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/eco-collect/internal/auth"
	"github.com/example/eco-collect/internal/logging"
	"github.com/example/eco-collect/internal/repository"
	"github.com/example/eco-collect/internal/usecase"
)

type registerRequest struct {
	UserName      string `json:"user_name"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	Role          string `json:"role"`
	TermsApproved bool   `json:"terms_approved"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

func (a *api) register(c *gin.Context) {
	var body registerRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		a.respondBindError(c, err)
		return
	}
	user, err := a.Accounts.Register(c.Request.Context(), usecase.RegisterInput{
		UserName:      body.UserName,
		Email:         body.Email,
		Password:      body.Password,
		Role:          body.Role,
		TermsApproved: body.TermsApproved,
	})
	if err != nil {
		a.respondError(c, "handlers.register", err)
		return
	}

	// The account is already committed.
	if err := a.startSession(c, user); err != nil {
		requestID := logging.RequestIDFromContext(c.Request.Context())
		logging.WithOperation(a.logger, "handlers.register", requestID).
			Warn("registered without a session", zap.Uint("user_id", user.ID), zap.Error(err))
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"user":    newUserView(user),
	})
}

func (a *api) login(c *gin.Context) {
	var body loginRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		a.respondBindError(c, err)
		return
	}

	user, err := a.Accounts.Login(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		a.respondError(c, "handlers.login", err)
		return
	}

	if err := a.startSession(c, user); err != nil {
		a.respondError(c, "handlers.login", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"user":    newUserView(user),
	})
}

func (a *api) logout(c *gin.Context) {
	if token := auth.TokenFromRequest(c, a.Options.CookieName); token != "" {
		if err := a.Sessions.Revoke(c.Request.Context(), token); err != nil {
			a.respondError(c, "handlers.logout", err)
			return
		}
	}

	a.setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (a *api) me(c *gin.Context) {
	identity, _ := auth.IdentityFromContext(c.Request.Context())
	user, err := a.Accounts.Me(c.Request.Context(), identity)
	if err != nil {
		a.respondError(c, "handlers.me", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": newUserView(user)})
}

func (a *api) forgotPassword(c *gin.Context) {
	var body forgotPasswordRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		a.respondBindError(c, err)
		return
	}

	token, err := a.Accounts.ForgotPassword(c.Request.Context(), body.Email)
	if err != nil {
		a.respondError(c, "handlers.forgot_password", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     "Password reset token generated",
		"reset_token": token,
	})
}

func (a *api) resetPassword(c *gin.Context) {
	var body resetPasswordRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		a.respondBindError(c, err)
		return
	}

	if err := a.Accounts.ResetPassword(c.Request.Context(), c.Param("token"), body.NewPassword); err != nil {
		a.respondError(c, "handlers.reset_password", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password has been reset successfully"})
}

func (a *api) startSession(c *gin.Context, user *repository.User) error {
	token, expiresAt, err := a.Sessions.Issue(c.Request.Context(), auth.Identity{
		UserID:   user.ID,
		UserName: user.UserName,
		Role:     user.Role,
	})
	if err != nil {
		return err
	}
	a.setSessionCookie(c, token, int(time.Until(expiresAt).Seconds()))
	return nil
}

func (a *api) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(a.Options.CookieName, value, maxAge, "/", "", a.Options.CookieSecure, true)
}

// respondBindError answers malformed JSON bodies, or bodies cut off by the
// size limiter.
func (a *api) respondBindError(c *gin.Context, err error) {
	if isBodyTooLarge(err) {
		writeError(c, http.StatusRequestEntityTooLarge, codePayloadTooLarge, "Request body size exceeds limit")
		return
	}
	writeError(c, http.StatusBadRequest, codeValidation, "Request must be valid JSON")
}
