package services

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"refund-review-api/models"
	"refund-review-api/store"
	"refund-review-api/utils"
)

// IngestRecord is a scored refund handed over by the upstream scoring pipeline.
type IngestRecord struct {
	ID                  string                     `json:"id"`
	CreatedAt           *time.Time                 `json:"createdAt"`
	TransactionCode     string                     `json:"transactionCode"`
	MemberID            string                     `json:"memberId"`
	OperatorID          string                     `json:"operatorId"`
	ItemID              string                     `json:"itemId"`
	WarehouseID         string                     `json:"warehouseId"`
	RegionID            string                     `json:"regionId"`
	RefundAmount        float64                    `json:"refundAmount"`
	Currency            string                     `json:"currency"`
	RiskScore           float64                    `json:"riskScore"`
	Priority            models.Priority            `json:"priority"`
	ModelRecommendation models.ModelRecommendation `json:"modelRecommendation"`
	ModelExplanation    *models.ModelExplanation   `json:"modelExplanation"`
	Flags               []string                   `json:"flags"`
}

// IngestResult reports the outcome of one record.
type IngestResult struct {
	ID             string `json:"id,omitempty"`
	Notified       bool   `json:"notified"`
	Error          string `json:"error,omitempty"`
	TransactionRef string `json:"transactionCode,omitempty"`
}

// IngestService creates pending transactions and triggers the creation fanout.
type IngestService struct {
	store  store.Store
	fanout *NotificationFanout
	now    func() time.Time
}

func NewIngestService(s store.Store, fanout *NotificationFanout) *IngestService {
	return &IngestService{store: s, fanout: fanout, now: time.Now}
}

// Ingest stores each record independently; a bad record does not stop the batch.
func (s *IngestService) Ingest(ctx context.Context, records []IngestRecord) []IngestResult {
	results := make([]IngestResult, len(records))
	for i, rec := range records {
		results[i] = s.ingestOne(ctx, rec)
	}
	return results
}

func (s *IngestService) ingestOne(ctx context.Context, rec IngestRecord) IngestResult {
	res := IngestResult{TransactionRef: rec.TransactionCode}
	tx, err := s.toTransaction(rec)
	if err != nil {
		res.Error = ReasonOf(err)
		return res
	}
	if err := s.store.CreateTransaction(ctx, &tx); err != nil {
		res.Error = ReasonOf(fromStore("ingest", err))
		log.Printf("[ingest] create %s failed: %v", tx.ID, err)
		return res
	}
	res.ID = tx.ID
	if s.fanout != nil {
		n, err := s.fanout.OnTransactionCreated(ctx, tx)
		if err != nil {
			log.Printf("[ingest] notification for %s failed: %v", tx.ID, err)
		}
		res.Notified = n != nil
	}
	return res
}

func (s *IngestService) toTransaction(rec IngestRecord) (models.Transaction, error) {
	const op = "ingest"
	warehouse := utils.SanitizeInput(rec.WarehouseID)
	region := utils.SanitizeInput(rec.RegionID)
	if warehouse == "" || region == "" {
		return models.Transaction{}, invalid(op, "warehouseId and regionId are required")
	}
	if rec.RefundAmount < 0 {
		return models.Transaction{}, invalid(op, "refundAmount must not be negative")
	}
	switch rec.ModelRecommendation {
	case models.RecommendFraud, models.RecommendValid, models.RecommendReview:
	case "":
		rec.ModelRecommendation = models.RecommendReview
	default:
		return models.Transaction{}, invalid(op, "Unknown model recommendation %q", rec.ModelRecommendation)
	}

	risk := utils.Clamp01(rec.RiskScore)
	priority := rec.Priority
	if priority == "" {
		priority = models.PriorityForRisk(risk)
	} else if priority.Rank() < 0 {
		return models.Transaction{}, invalid(op, "Unknown priority %q", rec.Priority)
	}

	now := s.now().UTC()
	created := now
	if rec.CreatedAt != nil && !rec.CreatedAt.IsZero() {
		created = rec.CreatedAt.UTC()
	}
	id := strings.TrimSpace(rec.ID)
	if id == "" {
		id = uuid.NewString()
	}
	currency := strings.ToUpper(strings.TrimSpace(rec.Currency))
	if currency == "" {
		currency = "USD"
	}

	return models.Transaction{
		ID:                  id,
		CreatedAt:           created,
		UpdatedAt:           now,
		TransactionCode:     utils.SanitizeInput(rec.TransactionCode),
		MemberID:            utils.SanitizeInput(rec.MemberID),
		OperatorID:          utils.SanitizeInput(rec.OperatorID),
		ItemID:              utils.SanitizeInput(rec.ItemID),
		WarehouseID:         warehouse,
		RegionID:            region,
		RefundAmount:        rec.RefundAmount,
		Currency:            currency,
		RiskScore:           risk,
		Priority:            priority,
		ModelRecommendation: rec.ModelRecommendation,
		ModelExplanation:    rec.ModelExplanation,
		Flags:               rec.Flags,
		Status:              models.StatusPending,
	}, nil
}
