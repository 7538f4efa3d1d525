package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"refund-review-api/services"
)

type IngestController struct {
	ingest *services.IngestService
}

func NewIngestController(ingest *services.IngestService) *IngestController {
	return &IngestController{ingest: ingest}
}

type ingestReq struct {
	Transactions []services.IngestRecord `json:"transactions" binding:"required"`
}

// POST /api/v1/ingest/transactions
func (ic *IngestController) Ingest(c *gin.Context) {
	var req ingestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if len(req.Transactions) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no transactions"})
		return
	}

	results := ic.ingest.Ingest(c.Request.Context(), req.Transactions)
	created := 0
	for _, r := range results {
		if r.Error == "" {
			created++
		}
	}
	status := http.StatusOK
	if created == 0 {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"created": created, "results": results})
}
