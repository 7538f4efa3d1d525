package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"refund-review-api/models"
	"refund-review-api/services"
)

type TransactionController struct {
	reviews  *services.ReviewService
	sessions *services.SessionRegistry
}

func NewTransactionController(reviews *services.ReviewService, sessions *services.SessionRegistry) *TransactionController {
	return &TransactionController{reviews: reviews, sessions: sessions}
}

// GET /api/v1/transactions
func (tc *TransactionController) List(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	filter, ok := transactionFilter(c)
	if !ok {
		return
	}

	page, err := tc.reviews.ListTransactions(c.Request.Context(), principal, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	body := gin.H{"items": page.Items}
	if page.Next != nil {
		body["nextCursor"] = page.Next.Encode()
	}
	c.JSON(http.StatusOK, body)
}

// GET /api/v1/transactions/:id
func (tc *TransactionController) Get(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	tx, err := tc.reviews.GetTransaction(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

// GET /api/v1/transactions/:id/audit
func (tc *TransactionController) Audit(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	entries, err := tc.reviews.AuditTrail(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"items": entries})
}

type decisionReq struct {
	Decision  models.Decision `json:"decision" binding:"required"`
	Notes     string          `json:"notes"`
	RiskScore *float64        `json:"riskScore"`
}

type feedbackReq struct {
	TransactionReviewed bool             `json:"transactionReviewed"`
	LetterSent          bool             `json:"letterSent"`
	Suspicious          models.Suspicion `json:"suspicious"`
	ReviewerFeedback    string           `json:"reviewerFeedback"`
}

type escalateReq struct {
	Reason string `json:"reason" binding:"required"`
	Notes  string `json:"notes"`
}

type overrideReq struct {
	NextDecision models.Decision `json:"nextDecision" binding:"required"`
	Notes        string          `json:"notes"`
}

type noteReq struct {
	Note string `json:"note" binding:"required"`
}

// POST /api/v1/transactions/:id/decision
func (tc *TransactionController) SetDecision(c *gin.Context) {
	var req decisionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	tc.apply(c, services.SetDecision{Decision: req.Decision, Notes: req.Notes, RiskScore: req.RiskScore})
}

// POST /api/v1/transactions/:id/feedback
func (tc *TransactionController) SubmitFeedback(c *gin.Context) {
	var req feedbackReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	tc.apply(c, services.SubmitFeedback{Feedback: models.Feedback{
		TransactionReviewed: req.TransactionReviewed,
		LetterSent:          req.LetterSent,
		Suspicious:          req.Suspicious,
		ReviewerFeedback:    req.ReviewerFeedback,
	}})
}

// POST /api/v1/transactions/:id/escalate
func (tc *TransactionController) Escalate(c *gin.Context) {
	var req escalateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	tc.apply(c, services.Escalate{Reason: req.Reason, Notes: req.Notes})
}

// POST /api/v1/transactions/:id/override
func (tc *TransactionController) Override(c *gin.Context) {
	var req overrideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	tc.apply(c, services.Override{Next: req.NextDecision, Notes: req.Notes})
}

// POST /api/v1/transactions/:id/notes
func (tc *TransactionController) AddNote(c *gin.Context) {
	var req noteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	tc.apply(c, services.AddNote{Note: req.Note})
}

func (tc *TransactionController) apply(c *gin.Context, op services.Operation) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	session := tc.sessions.Session(principal.ID)
	tx, err := session.Do(c.Request.Context(), principal, c.Param("id"), op)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "transaction": tx})
}
