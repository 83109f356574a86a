package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/characters"
)

const maxCharactersPerRequest = 200

type charactersResponse struct {
	Characters []characters.Character `json:"characters"`
}

func (h *httpHandler) handleGetCharacter(c *gin.Context) {
	record, err := h.view.Get(c.Request.Context(), c.Param("character"))
	if err != nil {
		h.writeServiceError(c, "character_lookup_failed", err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// handleGetCharacters serves ?chars=水,火 (or repeated chars parameters) in request order.
func (h *httpHandler) handleGetCharacters(c *gin.Context) {
	requested := make([]string, 0)
	for _, value := range c.QueryArray("chars") {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				requested = append(requested, trimmed)
			}
		}
	}
	if len(requested) == 0 || len(requested) > maxCharactersPerRequest {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid_characters"})
		return
	}

	records, err := h.view.GetMany(c.Request.Context(), requested)
	if err != nil {
		h.writeServiceError(c, "character_lookup_failed", err)
		return
	}
	c.JSON(http.StatusOK, charactersResponse{Characters: records})
}
