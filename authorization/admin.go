package authorization

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type createInviteRequest struct {
	MaxUses int `json:"max_uses"`
}

func (m *Module) handleCreateInvite(c *gin.Context) {
	var req createInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req.MaxUses = 1
	}

	invite, err := m.inviteStore.Create(c.Request.Context(), req.MaxUses)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create invite code"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"invite": invite})
}

func (m *Module) handleListInvites(c *gin.Context) {
	codes, err := m.inviteStore.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list invite codes"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"invites": codes})
}

type grantCreditsRequest struct {
	Amount int `json:"amount" binding:"required"`
}

func (m *Module) handleGrantCredits(c *gin.Context) {
	userID, ok := parseUserParam(c)
	if !ok {
		return
	}

	var req grantCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	ctx := c.Request.Context()
	if err := m.creditStore.Grant(ctx, userID, req.Amount); err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	balance, err := m.creditStore.Balance(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load balance"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": userID, "credits": balance})
}

type setTierRequest struct {
	Tier string `json:"tier" binding:"required"`
}

func (m *Module) handleSetTier(c *gin.Context) {
	userID, ok := parseUserParam(c)
	if !ok {
		return
	}

	var req setTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	if err := m.creditStore.SetTier(c.Request.Context(), userID, strings.ToLower(strings.TrimSpace(req.Tier))); err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": userID, "tier": strings.ToLower(strings.TrimSpace(req.Tier))})
}

func parseUserParam(c *gin.Context) (uint64, bool) {
	raw := strings.TrimSpace(c.Param("id"))
	userID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return 0, false
	}
	return userID, true
}
