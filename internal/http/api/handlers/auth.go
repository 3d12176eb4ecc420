package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/labforge/lims-admin/internal/accounts"
	"github.com/labforge/lims-admin/internal/apperr"
	"github.com/labforge/lims-admin/internal/models"
)

// AuthHandler serves sign-in and self-service account endpoints.
type AuthHandler struct {
	accounts *accounts.Service
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(svc *accounts.Service) *AuthHandler {
	return &AuthHandler{accounts: svc}
}

// loginRequest captures login credentials.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code"`
}

func (h *AuthHandler) sessionView(c *gin.Context, user models.User, message string, status int) {
	session, err := h.accounts.IssueSession(user)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondMessage(c, status, message, gin.H{
		"user":       userView(user),
		"token":      session.Token,
		"token_type": session.TokenType,
		"expires_at": session.ExpiresAt,
	})
}

// Login verifies credentials and issues a bearer token.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if !bindJSON(c, &body) {
		return
	}
	user, err := h.accounts.Authenticate(c.Request.Context(), body.Email, body.Password, body.TOTPCode)
	if err != nil {
		RespondError(c, err)
		return
	}
	h.sessionView(c, user, "Login successful", http.StatusOK)
}

// Logout revokes the token used for this request.
func (h *AuthHandler) Logout(c *gin.Context) {
	if errRevoke := h.accounts.RevokeToken(c.Request.Context(), CurrentClaims(c)); errRevoke != nil {
		RespondError(c, errRevoke)
		return
	}
	RespondMessage(c, http.StatusOK, "Logged out successfully", nil)
}

// LogoutAll revokes every token of the caller.
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	if errRevoke := h.accounts.RevokeAllTokens(c.Request.Context(), user.ID); errRevoke != nil {
		RespondError(c, errRevoke)
		return
	}
	RespondMessage(c, http.StatusOK, "Logged out from all devices", nil)
}

// Profile returns the caller.
func (h *AuthHandler) Profile(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"user": userView(user)})
}

// UpdateProfile changes the caller's name and phone number.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	var body accounts.ProfileUpdate
	if !bindJSON(c, &body) {
		return
	}
	updated, err := h.accounts.UpdateProfile(c.Request.Context(), user.ID, body)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondMessage(c, http.StatusOK, "Profile updated successfully", gin.H{"user": userView(updated)})
}

// setupAccountRequest captures the first password.
type setupAccountRequest struct {
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// SetupAccount sets the first password and returns the user's first keypair.
// The private key is only ever returned here.
func (h *AuthHandler) SetupAccount(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	var body setupAccountRequest
	if !bindJSON(c, &body) {
		return
	}
	if body.Password != body.PasswordConfirmation {
		RespondError(c, apperr.InvalidArg("password confirmation does not match"))
		return
	}
	issued, err := h.accounts.SetupAccount(c.Request.Context(), user.ID, body.Password)
	if err != nil {
		RespondError(c, err)
		return
	}
	updated, err := h.accounts.GetUser(c.Request.Context(), user.ID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondMessage(c, http.StatusOK, "Account setup completed successfully", gin.H{
		"user":    userView(updated),
		"keypair": issued,
	})
}

// changePasswordRequest captures a password change.
type changePasswordRequest struct {
	CurrentPassword         string `json:"current_password"`
	NewPassword             string `json:"new_password"`
	NewPasswordConfirmation string `json:"new_password_confirmation"`
}

// ChangePassword replaces the caller's password.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	var body changePasswordRequest
	if !bindJSON(c, &body) {
		return
	}
	if body.NewPassword != body.NewPasswordConfirmation {
		RespondError(c, apperr.InvalidArg("password confirmation does not match"))
		return
	}
	if err := h.accounts.ChangePassword(c.Request.Context(), user.ID, body.CurrentPassword, body.NewPassword); err != nil {
		RespondError(c, err)
		return
	}
	RespondMessage(c, http.StatusOK, "Password changed successfully", nil)
}

// UpdateLogin records a login time for clients resuming a stored session.
func (h *AuthHandler) UpdateLogin(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	if err := h.accounts.TouchLogin(c.Request.Context(), user.ID); err != nil {
		RespondError(c, err)
		return
	}
	RespondMessage(c, http.StatusOK, "Login time updated", nil)
}

// PrepareTOTP starts two-factor enrollment.
func (h *AuthHandler) PrepareTOTP(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	enrollment, err := h.accounts.PrepareTOTP(c.Request.Context(), user.ID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, enrollment)
}

// totpRequest carries a TOTP code and, for confirmation, the pending secret.
type totpRequest struct {
	Secret string `json:"secret"`
	Code   string `json:"code"`
}

// ConfirmTOTP stores the pending secret.
func (h *AuthHandler) ConfirmTOTP(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	var body totpRequest
	if !bindJSON(c, &body) {
		return
	}
	if err := h.accounts.ConfirmTOTP(c.Request.Context(), user.ID, body.Secret, body.Code); err != nil {
		RespondError(c, err)
		return
	}
	RespondMessage(c, http.StatusOK, "Two-factor authentication enabled", nil)
}

// DisableTOTP removes the caller's TOTP secret.
func (h *AuthHandler) DisableTOTP(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	var body totpRequest
	if !bindJSON(c, &body) {
		return
	}
	if err := h.accounts.DisableTOTP(c.Request.Context(), user.ID, body.Code); err != nil {
		RespondError(c, err)
		return
	}
	RespondMessage(c, http.StatusOK, "Two-factor authentication disabled", nil)
}
