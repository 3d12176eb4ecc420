package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/labforge/lims-admin/internal/apperr"
	"github.com/labforge/lims-admin/internal/credentials"
	"github.com/labforge/lims-admin/internal/models"
)

// KeypairHandler serves user and group key material.
type KeypairHandler struct {
	keys *credentials.Manager
}

// NewKeypairHandler constructs a KeypairHandler.
func NewKeypairHandler(keys *credentials.Manager) *KeypairHandler {
	return &KeypairHandler{keys: keys}
}

// generateKeypairRequest selects the RSA modulus size.
type generateKeypairRequest struct {
	KeySize int `json:"key_size"`
}

// Generate rotates the caller's keypair. The private key is returned once.
func (h *KeypairHandler) Generate(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	var body generateKeypairRequest
	if c.Request.ContentLength != 0 {
		if !bindJSON(c, &body) {
			return
		}
	}
	issued, err := h.keys.GenerateKeypair(c.Request.Context(), user.ID, body.KeySize)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondMessage(c, http.StatusCreated, "Keypair generated successfully", issued)
}

// Active returns the caller's active public key.
func (h *KeypairHandler) Active(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	info, err := h.keys.GetActiveKeypair(c.Request.Context(), user.ID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, info)
}

// History lists the caller's keypairs, newest first.
func (h *KeypairHandler) History(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	rows, err := h.keys.ListKeypairs(c.Request.Context(), user.ID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"keypairs": rows})
}

// Verify recomputes the stretched key of a keypair. Users may only verify
// their own keypairs; administrators may verify any.
func (h *KeypairHandler) Verify(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, err := ParseID(c, "id")
	if err != nil {
		RespondError(c, err)
		return
	}
	owner, err := h.keys.KeypairOwner(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	if owner != user.ID && user.UserType != models.UserTypeAdmin {
		RespondError(c, apperr.Forbidden("keypair belongs to another user"))
		return
	}
	valid, err := h.keys.VerifyKeyStretching(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"keypair_id": id, "valid": valid})
}

// JWKS publishes every active public key as a JSON Web Key Set.
func (h *KeypairHandler) JWKS(c *gin.Context) {
	set, err := h.keys.PublicKeySet(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=300")
	c.JSON(http.StatusOK, set)
}

// GroupPublicKey returns the shared group public key, creating the group
// keypair on first use.
func (h *KeypairHandler) GroupPublicKey(c *gin.Context) {
	pub, err := h.keys.GroupPublicKey(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{
		"public_key":    pub,
		"key_algorithm": credentials.AlgorithmLabel(credentials.GroupKeyBits),
	})
}

// GroupKeypair returns the full group keypair to administrators.
func (h *KeypairHandler) GroupKeypair(c *gin.Context) {
	group, err := h.keys.GetGroupKeypair(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, group)
}

// RegenerateGroupKeypair replaces the group keypair.
func (h *KeypairHandler) RegenerateGroupKeypair(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	group, err := h.keys.RegenerateGroupKeypair(c.Request.Context(), credentials.Caller{UserID: user.ID, UserType: user.UserType})
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondMessage(c, http.StatusOK, "Group keypair regenerated; data encrypted to the previous key can no longer be decrypted", group)
}
