package services

import (
	"strings"

	"refund-review-api/models"
	"refund-review-api/utils"
)

// GenerateEscalationLetter renders the secondary-review request attached to an escalation.
func GenerateEscalationLetter(tx models.Transaction, reason string) string {
	summary := "- Model summary: (not provided)"
	if tx.ModelExplanation != nil && strings.TrimSpace(tx.ModelExplanation.Summary) != "" {
		summary = "- Model summary: " + tx.ModelExplanation.Summary
	}

	lines := []string{
		"Subject: Refund Transaction Escalation Review",
		"",
		"Transaction ID: " + tx.ID,
		"Warehouse: " + tx.WarehouseID,
		"Region: " + tx.RegionID,
		"Refund Amount: " + utils.FormatCurrency(tx.RefundAmount, tx.Currency),
		"AI Risk Score: " + utils.FormatPercent(tx.RiskScore),
		"AI Recommendation: " + strings.ToUpper(string(tx.ModelRecommendation)),
		"",
		"Escalation Reason:",
		reason,
		"",
		"Requested Action:",
		"- Please perform secondary review and provide approval/denial guidance.",
		"- Attach any supporting documentation for audit purposes.",
		"",
		"Notes:",
		summary,
		"",
		"Thank you,",
		"Fraud Operations",
	}
	return strings.Join(lines, "\n")
}
