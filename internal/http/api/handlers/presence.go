package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/labforge/lims-admin/internal/presence"
)

// PresenceHandler serves heartbeat and presence queries.
type PresenceHandler struct {
	tracker    *presence.Tracker
	reconciler *presence.Reconciler
	now        func() time.Time
}

// NewPresenceHandler constructs a PresenceHandler.
func NewPresenceHandler(tracker *presence.Tracker, reconciler *presence.Reconciler) *PresenceHandler {
	return &PresenceHandler{tracker: tracker, reconciler: reconciler, now: time.Now}
}

// Heartbeat marks the caller online and records the client device.
func (h *PresenceHandler) Heartbeat(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	device := presence.DeviceInfoFromRequest(c.Request, c.ClientIP(), h.now())
	report, err := h.tracker.Heartbeat(c.Request.Context(), user.ID, &device)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondMessage(c, http.StatusOK, "Heartbeat recorded", report)
}

// Status returns the caller's presence.
func (h *PresenceHandler) Status(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	report, err := h.tracker.Status(c.Request.Context(), user.ID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, report)
}

// Offline marks the caller offline, typically on client shutdown.
func (h *PresenceHandler) Offline(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	if err := h.tracker.SetOffline(c.Request.Context(), user.ID); err != nil {
		RespondError(c, err)
		return
	}
	RespondMessage(c, http.StatusOK, "Status set to offline", nil)
}

// Online lists users whose last heartbeat is recent.
func (h *PresenceHandler) Online(c *gin.Context) {
	list, err := h.tracker.OnlineUsers(c.Request.Context(), h.now())
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, list)
}

// Reconcile runs one sweep on demand and reports the resulting counts.
func (h *PresenceHandler) Reconcile(c *gin.Context) {
	result, err := h.reconciler.RunOnce(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	summary, err := h.tracker.Summary(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"result": result, "summary": summary})
}
