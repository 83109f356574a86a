package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/auth"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/characters"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/revisions"
)

type proposalRequestPayload struct {
	Fields      map[string]json.RawMessage `json:"fields"`
	Comment     string                     `json:"comment"`
	AutoApprove bool                       `json:"autoApprove"`
}

type reviewRequestPayload struct {
	Comment string `json:"comment"`
}

type reviewResponsePayload struct {
	ID     string           `json:"id"`
	Status revisions.Status `json:"status"`
}

type revisionsResponse struct {
	Revisions []revisions.Revision `json:"revisions"`
}

func (h *httpHandler) handleSubmit(c *gin.Context) {
	var request proposalRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.Fields) == 0 {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid_request"})
		return
	}
	proposal, err := characters.DecodeProposal(request.Fields)
	if err != nil {
		h.writeServiceError(c, "submit_failed", err)
		return
	}

	// Only reviewers may skip the review queue.
	autoApprove := false
	if claims, ok := sessionClaims(c); ok && request.AutoApprove {
		autoApprove = claims.HasRole(auth.RoleReviewer)
	}

	character := c.Param("character")
	result, err := h.revisions.Submit(c.Request.Context(), revisions.SubmitRequest{
		Character:   character,
		Proposal:    proposal,
		Editor:      editorIdentity(c),
		Comment:     request.Comment,
		AutoApprove: autoApprove,
	})
	if err != nil {
		h.writeServiceError(c, "submit_failed", err)
		return
	}

	eventType := EventRevisionSubmitted
	if result.Status == revisions.StatusApproved {
		eventType = EventRevisionApproved
	}
	h.publish(eventType, result.ID, character, result.Status)
	c.JSON(http.StatusCreated, result)
}

func (h *httpHandler) handleAmend(c *gin.Context) {
	var request proposalRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.Fields) == 0 {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid_request"})
		return
	}
	proposal, err := characters.DecodeProposal(request.Fields)
	if err != nil {
		h.writeServiceError(c, "amend_failed", err)
		return
	}

	amended, err := h.revisions.Amend(c.Request.Context(), revisions.AmendRequest{
		RevisionID: c.Param("id"),
		Proposal:   proposal,
		Editor:     editorIdentity(c),
		Comment:    request.Comment,
	})
	if err != nil {
		h.writeServiceError(c, "amend_failed", err)
		return
	}
	if amended == nil {
		writeConflict(c, "revision_already_reviewed")
		return
	}

	h.publish(EventRevisionAmended, amended.ID, amended.Character, amended.Status)
	c.JSON(http.StatusOK, amended)
}

func (h *httpHandler) handleApprove(c *gin.Context) {
	claims, _ := sessionClaims(c)
	revisionID := c.Param("id")
	approved, err := h.revisions.Approve(c.Request.Context(), revisionID, claims.UserID)
	if err != nil {
		h.writeServiceError(c, "approve_failed", err)
		return
	}
	if !approved {
		writeConflict(c, "revision_already_reviewed")
		return
	}
	h.publishReviewed(c, EventRevisionApproved, revisionID, revisions.StatusApproved)
}

func (h *httpHandler) handleReject(c *gin.Context) {
	var request reviewRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid_request"})
		return
	}
	claims, _ := sessionClaims(c)
	revisionID := c.Param("id")
	rejected, err := h.revisions.Reject(c.Request.Context(), revisionID, claims.UserID, request.Comment)
	if err != nil {
		h.writeServiceError(c, "reject_failed", err)
		return
	}
	if !rejected {
		writeConflict(c, "revision_already_reviewed")
		return
	}
	h.publishReviewed(c, EventRevisionRejected, revisionID, revisions.StatusRejected)
}

func (h *httpHandler) handleListPending(c *gin.Context) {
	pending, err := h.revisions.ListPending(c.Request.Context(), revisions.PendingFilter{
		Character:          c.Query("character"),
		UserID:             c.Query("userId"),
		AnonymousSessionID: c.Query("anonymousSessionId"),
	})
	if err != nil {
		h.writeServiceError(c, "list_pending_failed", err)
		return
	}
	c.JSON(http.StatusOK, revisionsResponse{Revisions: pending})
}

func (h *httpHandler) handleHistory(c *gin.Context) {
	page, ok := parsePage(c)
	if !ok {
		return
	}
	history, err := h.revisions.History(c.Request.Context(), c.Param("character"), page)
	if err != nil {
		h.writeServiceError(c, "history_failed", err)
		return
	}
	c.JSON(http.StatusOK, revisionsResponse{Revisions: history})
}

func (h *httpHandler) handleRecentlyApproved(c *gin.Context) {
	page, ok := parsePage(c)
	if !ok {
		return
	}
	recent, err := h.revisions.RecentlyApproved(c.Request.Context(), page)
	if err != nil {
		h.writeServiceError(c, "recently_approved_failed", err)
		return
	}
	c.JSON(http.StatusOK, revisionsResponse{Revisions: recent})
}

func (h *httpHandler) handleBaseline(c *gin.Context) {
	baseline, err := h.revisions.Baseline(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, "baseline_failed", err)
		return
	}
	c.JSON(http.StatusOK, baseline)
}

func (h *httpHandler) handleGetRevision(c *gin.Context) {
	revision, err := h.revisions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, "revision_lookup_failed", err)
		return
	}
	c.JSON(http.StatusOK, revision)
}

func (h *httpHandler) publishReviewed(c *gin.Context, eventType, revisionID string, status revisions.Status) {
	character := ""
	if revision, err := h.revisions.Get(c.Request.Context(), revisionID); err == nil {
		character = revision.Character
	}
	h.publish(eventType, revisionID, character, status)
	c.JSON(http.StatusOK, reviewResponsePayload{ID: revisionID, Status: status})
}

func (h *httpHandler) publish(eventType, revisionID, character string, status revisions.Status) {
	h.events.Publish(ReviewEvent{
		EventType:  eventType,
		RevisionID: revisionID,
		Character:  character,
		Status:     string(status),
		Timestamp:  time.Now().UTC(),
	})
}

func parsePage(c *gin.Context) (revisions.Page, bool) {
	var page revisions.Page
	for _, bound := range []struct {
		key    string
		target *int
	}{{"limit", &page.Limit}, {"offset", &page.Offset}} {
		raw := c.Query(bound.key)
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid_" + bound.key})
			return revisions.Page{}, false
		}
		*bound.target = value
	}
	return page, true
}
