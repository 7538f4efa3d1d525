package controllers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"refund-review-api/middleware"
	"refund-review-api/models"
	"refund-review-api/services"
)

// statusFor maps a review error kind onto an HTTP status.
func statusFor(err error) int {
	switch services.KindOf(err) {
	case services.KindAccessDenied, services.KindScopeViolation:
		return http.StatusForbidden
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindUnavailable:
		return http.StatusServiceUnavailable
	case services.KindInvalidInput:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondError writes a display reason and the error kind.
func respondError(c *gin.Context, err error) {
	body := gin.H{"error": services.ReasonOf(err)}
	if kind := services.KindOf(err); kind != "" {
		body["kind"] = kind
	}
	c.JSON(statusFor(err), body)
}

func currentPrincipal(c *gin.Context) (*models.Principal, bool) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	return p, true
}

func queryLimit(c *gin.Context) int {
	if v, err := strconv.Atoi(strings.TrimSpace(c.Query("limit"))); err == nil && v > 0 {
		return v
	}
	return 0
}

// parseFrom accepts RFC3339 timestamps or plain dates.
func parseFrom(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

func transactionFilter(c *gin.Context) (services.TransactionFilter, bool) {
	from, ok := parseFrom(c.Query("from"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date", "kind": services.KindInvalidInput})
		return services.TransactionFilter{}, false
	}
	return services.TransactionFilter{
		From:     from,
		Priority: models.Priority(strings.ToLower(strings.TrimSpace(c.Query("priority")))),
		Status:   models.Status(strings.ToLower(strings.TrimSpace(c.Query("status")))),
		Limit:    queryLimit(c),
		Cursor:   c.Query("cursor"),
	}, true
}
