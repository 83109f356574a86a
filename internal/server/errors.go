package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/characters"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/revisions"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/snapshots"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/svcerr"
	"go.uber.org/zap"
)

type errorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeServiceError maps a domain error onto an HTTP status and a stable error body.
func (h *httpHandler) writeServiceError(c *gin.Context, fallback string, err error) {
	code := svcerr.CodeOf(err)
	switch {
	case errors.Is(err, characters.ErrMalformedField):
		c.JSON(http.StatusBadRequest, errorPayload{Error: "malformed_field", Code: code})
	case errors.Is(err, revisions.ErrMissingIdentity):
		c.JSON(http.StatusBadRequest, errorPayload{Error: "missing_identity", Code: code})
	case errors.Is(err, revisions.ErrMissingComment):
		c.JSON(http.StatusBadRequest, errorPayload{Error: "missing_comment", Code: code})
	case errors.Is(err, revisions.ErrCharacterNotFound):
		c.JSON(http.StatusNotFound, errorPayload{Error: "character_not_found", Code: code})
	case errors.Is(err, revisions.ErrRevisionNotFound):
		c.JSON(http.StatusNotFound, errorPayload{Error: "revision_not_found", Code: code})
	case errors.Is(err, snapshots.ErrCorpusNotSynced):
		c.JSON(http.StatusNotFound, errorPayload{Error: "corpus_not_synced", Code: code})
	case errors.Is(err, revisions.ErrNoFieldsChanged):
		c.JSON(http.StatusUnprocessableEntity, errorPayload{Error: "no_fields_changed", Code: code})
	case errors.Is(err, revisions.ErrInvalidVariant):
		c.JSON(http.StatusUnprocessableEntity, errorPayload{Error: revisions.VariantReason(err), Code: code})
	case errors.Is(err, revisions.ErrNotRevisionEditor):
		c.JSON(http.StatusForbidden, errorPayload{Error: "not_revision_editor", Code: code})
	default:
		h.logger.Error("request failed", zap.String("code", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorPayload{Error: fallback, Code: code})
	}
}

func writeConflict(c *gin.Context, reason string) {
	c.JSON(http.StatusConflict, errorPayload{Error: reason})
}
