package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/labforge/lims-admin/internal/apperr"
	"github.com/labforge/lims-admin/internal/models"
	"github.com/labforge/lims-admin/internal/security"
	log "github.com/sirupsen/logrus"
)

// Context keys set by the auth middleware.
const (
	ContextUserKey   = "user"
	ContextClaimsKey = "claims"
	ContextUserIDKey = "userID"
)

// RespondOK writes a success envelope.
func RespondOK(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// RespondMessage writes a success envelope with a human readable message.
func RespondMessage(c *gin.Context, status int, message string, data any) {
	body := gin.H{"success": true, "message": message}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}

// RespondError maps err to its HTTP status and aborts the request. Internal
// causes are logged and never returned.
func RespondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := kind.HTTPStatus()
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("api: request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"kind":    kind,
			"message": apperr.PublicMessage(err),
		},
	})
}

// ParseID reads a positive integer path parameter.
func ParseID(c *gin.Context, name string) (uint64, error) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.InvalidArg("invalid " + name)
	}
	return id, nil
}

// CurrentUser returns the authenticated user loaded by the auth middleware.
func CurrentUser(c *gin.Context) (models.User, bool) {
	value, ok := c.Get(ContextUserKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := value.(models.User)
	return user, ok
}

// CurrentClaims returns the token claims of the request.
func CurrentClaims(c *gin.Context) *security.Claims {
	value, ok := c.Get(ContextClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := value.(*security.Claims)
	return claims
}

func mustUser(c *gin.Context) (models.User, bool) {
	user, ok := CurrentUser(c)
	if !ok {
		RespondError(c, apperr.Unauthorized("authentication required"))
		return models.User{}, false
	}
	return user, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if errBind := c.ShouldBindJSON(dst); errBind != nil {
		RespondError(c, apperr.InvalidArg("invalid json"))
		return false
	}
	return true
}
