package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/peterolson/dong-chinese-v2-sub000/internal/snapshots"
)

type ledgerResponse struct {
	Entries []snapshots.LedgerEntry `json:"entries"`
}

func (h *httpHandler) handleLedger(c *gin.Context) {
	entries, err := h.ledger.List(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, "ledger_failed", err)
		return
	}
	c.JSON(http.StatusOK, ledgerResponse{Entries: entries})
}

func (h *httpHandler) handleLedgerEntry(c *gin.Context) {
	entry, err := h.ledger.Entry(c.Request.Context(), c.Param("corpus"))
	if err != nil {
		h.writeServiceError(c, "ledger_failed", err)
		return
	}
	c.JSON(http.StatusOK, entry)
}
