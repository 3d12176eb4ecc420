package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/labforge/lims-admin/internal/accounts"
	"github.com/labforge/lims-admin/internal/apperr"
	"github.com/labforge/lims-admin/internal/credentials"
	"github.com/labforge/lims-admin/internal/models"
)

// userView is the public JSON shape of a user.
func userView(u models.User) gin.H {
	return gin.H{
		"id":                u.ID,
		"first_name":        u.FirstName,
		"last_name":         u.LastName,
		"full_name":         u.FullName(),
		"email":             u.Email,
		"phone_number":      u.PhoneNumber,
		"date_hired":        u.DateHired,
		"user_type":         u.UserType,
		"user_type_label":   models.UserTypeLabel(u.UserType),
		"account_is_set":    u.AccountIsSet,
		"is_active":         u.IsActive,
		"last_login_at":     u.LastLoginAt,
		"last_heartbeat_at": u.LastHeartbeatAt,
		"session_status":    u.SessionStatus,
		"two_factor":        u.TOTPSecret != "",
		"created_at":        u.CreatedAt,
		"updated_at":        u.UpdatedAt,
	}
}

// UserHandler manages lab accounts on behalf of administrators.
type UserHandler struct {
	accounts *accounts.Service
	keys     *credentials.Manager
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(svc *accounts.Service, keys *credentials.Manager) *UserHandler {
	return &UserHandler{accounts: svc, keys: keys}
}

// createdUserView hides the temporary password once it went out by email.
func createdUserView(created accounts.CreatedUser) gin.H {
	out := gin.H{
		"user":       userView(created.User),
		"email_sent": created.EmailSent,
	}
	if !created.EmailSent {
		out["temporary_password"] = created.TemporaryPassword
	}
	return out
}

// Create adds a user with a temporary password.
func (h *UserHandler) Create(c *gin.Context) {
	var body accounts.CreateUserInput
	if !bindJSON(c, &body) {
		return
	}
	created, err := h.accounts.CreateUser(c.Request.Context(), body)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondMessage(c, http.StatusCreated, "User created successfully", createdUserView(created))
}

// List returns users with optional filters.
func (h *UserHandler) List(c *gin.Context) {
	filter := accounts.ListFilter{
		Search:        strings.TrimSpace(c.Query("search")),
		UserType:      strings.TrimSpace(c.Query("user_type")),
		SessionStatus: strings.TrimSpace(c.Query("session_status")),
	}
	if raw := strings.TrimSpace(c.Query("is_active")); raw != "" {
		active, errParse := strconv.ParseBool(raw)
		if errParse != nil {
			RespondError(c, apperr.InvalidArg("invalid is_active"))
			return
		}
		filter.Active = &active
	}
	if raw := strings.TrimSpace(c.Query("page")); raw != "" {
		filter.Page, _ = strconv.Atoi(raw)
	}
	if raw := strings.TrimSpace(c.Query("per_page")); raw != "" {
		filter.PageSize, _ = strconv.Atoi(raw)
	}

	rows, total, err := h.accounts.ListUsers(c.Request.Context(), filter)
	if err != nil {
		RespondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, userView(row))
	}
	RespondOK(c, http.StatusOK, gin.H{"users": out, "total": total})
}

// Stats returns user counts for the dashboard.
func (h *UserHandler) Stats(c *gin.Context) {
	stats, err := h.accounts.UserStats(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, stats)
}

// Get returns a user by id.
func (h *UserHandler) Get(c *gin.Context) {
	id, err := ParseID(c, "id")
	if err != nil {
		RespondError(c, err)
		return
	}
	user, err := h.accounts.GetUser(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, userView(user))
}

// updateUserRequest mirrors accounts.UpdateUserInput with a date string.
type updateUserRequest struct {
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phone_number"`
	UserType    *string `json:"user_type"`
	DateHired   *string `json:"date_hired"`
	IsActive    *bool   `json:"is_active"`
}

// Update applies admin edits to a user.
func (h *UserHandler) Update(c *gin.Context) {
	actor, ok := mustUser(c)
	if !ok {
		return
	}
	id, err := ParseID(c, "id")
	if err != nil {
		RespondError(c, err)
		return
	}
	var body updateUserRequest
	if !bindJSON(c, &body) {
		return
	}
	in := accounts.UpdateUserInput{
		FirstName:   body.FirstName,
		LastName:    body.LastName,
		Email:       body.Email,
		PhoneNumber: body.PhoneNumber,
		UserType:    body.UserType,
		IsActive:    body.IsActive,
	}
	if body.DateHired != nil && strings.TrimSpace(*body.DateHired) != "" {
		hired, errParse := time.Parse("2006-01-02", strings.TrimSpace(*body.DateHired))
		if errParse != nil {
			RespondError(c, apperr.InvalidArg("date_hired must be YYYY-MM-DD"))
			return
		}
		in.DateHired = &hired
	}
	user, err := h.accounts.UpdateUser(c.Request.Context(), actor.ID, id, in)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondMessage(c, http.StatusOK, "User updated successfully", userView(user))
}

// ToggleActive flips a user's active flag.
func (h *UserHandler) ToggleActive(c *gin.Context) {
	actor, ok := mustUser(c)
	if !ok {
		return
	}
	id, err := ParseID(c, "id")
	if err != nil {
		RespondError(c, err)
		return
	}
	user, err := h.accounts.ToggleActive(c.Request.Context(), actor.ID, id)
	if err != nil {
		RespondError(c, err)
		return
	}
	message := "User deactivated successfully"
	if user.IsActive {
		message = "User activated successfully"
	}
	RespondMessage(c, http.StatusOK, message, userView(user))
}

// ResetPassword issues a new temporary password.
func (h *UserHandler) ResetPassword(c *gin.Context) {
	id, err := ParseID(c, "id")
	if err != nil {
		RespondError(c, err)
		return
	}
	reset, err := h.accounts.ResetPassword(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondMessage(c, http.StatusOK, "Password reset successfully", createdUserView(reset))
}

// Delete removes a user.
func (h *UserHandler) Delete(c *gin.Context) {
	actor, ok := mustUser(c)
	if !ok {
		return
	}
	id, err := ParseID(c, "id")
	if err != nil {
		RespondError(c, err)
		return
	}
	if errDelete := h.accounts.DeleteUser(c.Request.Context(), actor.ID, id); errDelete != nil {
		RespondError(c, errDelete)
		return
	}
	RespondMessage(c, http.StatusOK, "User deleted successfully", nil)
}

// Keypairs lists every keypair issued to a user, newest first.
func (h *UserHandler) Keypairs(c *gin.Context) {
	id, err := ParseID(c, "id")
	if err != nil {
		RespondError(c, err)
		return
	}
	if _, errUser := h.accounts.GetUser(c.Request.Context(), id); errUser != nil {
		RespondError(c, errUser)
		return
	}
	rows, err := h.keys.ListKeypairs(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"keypairs": rows})
}
