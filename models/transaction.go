package models

import (
	"encoding/json"
	"time"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank orders priorities from low (0) to critical (3); unknown values rank -1.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	}
	return -1
}

// Elevated reports whether p is high or critical.
func (p Priority) Elevated() bool { return p.Rank() >= PriorityHigh.Rank() }

// PriorityForRisk derives the priority bucket from a risk score in [0,1].
func PriorityForRisk(risk float64) Priority {
	switch {
	case risk >= 0.9:
		return PriorityCritical
	case risk >= 0.75:
		return PriorityHigh
	case risk >= 0.5:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

type ModelRecommendation string

const (
	RecommendFraud  ModelRecommendation = "fraud"
	RecommendValid  ModelRecommendation = "valid"
	RecommendReview ModelRecommendation = "review"
)

type Decision string

const (
	DecisionFraud     Decision = "fraud"
	DecisionValid     Decision = "valid"
	DecisionEscalated Decision = "escalated"
)

func (d Decision) Valid() bool {
	return d == DecisionFraud || d == DecisionValid || d == DecisionEscalated
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusReviewed  Status = "reviewed"
	StatusEscalated Status = "escalated"
)

type Suspicion string

const (
	SuspicionYes    Suspicion = "yes"
	SuspicionNo     Suspicion = "no"
	SuspicionUnsure Suspicion = "unsure"
)

type ModelExplanation struct {
	Summary string   `json:"summary,omitempty"`
	Reasons []string `json:"reasons,omitempty"`
}

type HumanDecision struct {
	Decision       Decision  `json:"decision"`
	DecidedAt      time.Time `json:"decidedAt"`
	DecidedBy      string    `json:"decidedBy"`
	DecidedByEmail string    `json:"decidedByEmail,omitempty"`
	Notes          string    `json:"notes"`
}

type Escalation struct {
	EscalatedAt      time.Time `json:"escalatedAt"`
	EscalatedBy      string    `json:"escalatedBy"`
	EscalatedByEmail string    `json:"escalatedByEmail,omitempty"`
	Reason           string    `json:"reason"`
	Letter           string    `json:"letter"`
}

type Feedback struct {
	TransactionReviewed bool      `json:"transactionReviewed"`
	LetterSent          bool      `json:"letterSent"`
	Suspicious          Suspicion `json:"suspicious,omitempty"`
	ReviewerFeedback    string    `json:"reviewerFeedback"`
}

type Note struct {
	At      time.Time `json:"at"`
	By      string    `json:"by"`
	ByEmail string    `json:"byEmail,omitempty"`
	Note    string    `json:"note"`
}

// Transaction is a machine-flagged refund under human review.
type Transaction struct {
	ID        string    `gorm:"primaryKey;column:id;size:64" json:"id"`
	CreatedAt time.Time `gorm:"column:created_at;index" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updatedAt"`

	TransactionCode string `gorm:"column:transaction_code;size:32" json:"transactionCode,omitempty"`
	MemberID        string `gorm:"column:member_id;size:32" json:"memberId,omitempty"`
	OperatorID      string `gorm:"column:operator_id;size:32" json:"operatorId,omitempty"`
	ItemID          string `gorm:"column:item_id;size:32" json:"itemId,omitempty"`

	WarehouseID string `gorm:"column:warehouse_id;size:64;index" json:"warehouseId"`
	RegionID    string `gorm:"column:region_id;size:64;index" json:"regionId"`

	RefundAmount float64 `gorm:"column:refund_amount" json:"refundAmount"`
	Currency     string  `gorm:"column:currency;size:8" json:"currency"`

	RiskScore           float64             `gorm:"column:risk_score" json:"riskScore"`
	Priority            Priority            `gorm:"column:priority;size:16" json:"priority"`
	ModelRecommendation ModelRecommendation `gorm:"column:model_recommendation;size:16" json:"modelRecommendation"`
	ModelExplanation    *ModelExplanation   `gorm:"column:model_explanation;serializer:json" json:"modelExplanation,omitempty"`
	Flags               []string            `gorm:"column:flags;serializer:json" json:"flags,omitempty"`

	HumanDecision *HumanDecision `gorm:"column:human_decision;serializer:json" json:"humanDecision,omitempty"`
	Escalation    *Escalation    `gorm:"column:escalation;serializer:json" json:"escalation,omitempty"`
	Feedback      *Feedback      `gorm:"column:feedback;serializer:json" json:"feedback,omitempty"`
	LastNote      *Note          `gorm:"column:last_note;serializer:json" json:"lastNote,omitempty"`

	Status Status `gorm:"column:status;size:16;index" json:"status"`
}

func (Transaction) TableName() string { return "transactions" }

// TransactionPatch is a partial update; nil fields are left untouched.
type TransactionPatch struct {
	UpdatedAt     *time.Time     `json:"updatedAt,omitempty"`
	RiskScore     *float64       `json:"riskScore,omitempty"`
	Priority      *Priority      `json:"priority,omitempty"`
	HumanDecision *HumanDecision `json:"humanDecision,omitempty"`
	Escalation    *Escalation    `json:"escalation,omitempty"`
	Feedback      *Feedback      `json:"feedback,omitempty"`
	LastNote      *Note          `json:"lastNote,omitempty"`
	Status        *Status        `json:"status,omitempty"`
}

// Merge layers next over p; fields set in next win.
func (p TransactionPatch) Merge(next TransactionPatch) TransactionPatch {
	out := p
	if next.UpdatedAt != nil {
		out.UpdatedAt = next.UpdatedAt
	}
	if next.RiskScore != nil {
		out.RiskScore = next.RiskScore
	}
	if next.Priority != nil {
		out.Priority = next.Priority
	}
	if next.HumanDecision != nil {
		out.HumanDecision = next.HumanDecision
	}
	if next.Escalation != nil {
		out.Escalation = next.Escalation
	}
	if next.Feedback != nil {
		out.Feedback = next.Feedback
	}
	if next.LastNote != nil {
		out.LastNote = next.LastNote
	}
	if next.Status != nil {
		out.Status = next.Status
	}
	return out
}

// Apply returns a copy of tx with the patch applied.
func (p TransactionPatch) Apply(tx Transaction) Transaction {
	if p.UpdatedAt != nil {
		tx.UpdatedAt = *p.UpdatedAt
	}
	if p.RiskScore != nil {
		tx.RiskScore = *p.RiskScore
	}
	if p.Priority != nil {
		tx.Priority = *p.Priority
	}
	if p.HumanDecision != nil {
		v := *p.HumanDecision
		tx.HumanDecision = &v
	}
	if p.Escalation != nil {
		v := *p.Escalation
		tx.Escalation = &v
	}
	if p.Feedback != nil {
		v := *p.Feedback
		tx.Feedback = &v
	}
	if p.LastNote != nil {
		v := *p.LastNote
		tx.LastNote = &v
	}
	if p.Status != nil {
		tx.Status = *p.Status
	}
	return tx
}

// Columns converts the patch into column assignments for a partial SQL update.
// JSON sub-records are encoded here since map updates bypass field serializers.
func (p TransactionPatch) Columns() (map[string]interface{}, error) {
	cols := map[string]interface{}{}
	if p.UpdatedAt != nil {
		cols["updated_at"] = *p.UpdatedAt
	}
	if p.RiskScore != nil {
		cols["risk_score"] = *p.RiskScore
	}
	if p.Priority != nil {
		cols["priority"] = string(*p.Priority)
	}
	if p.Status != nil {
		cols["status"] = string(*p.Status)
	}
	encoded := map[string]interface{}{
		"human_decision": p.HumanDecision,
		"escalation":     p.Escalation,
		"feedback":       p.Feedback,
		"last_note":      p.LastNote,
	}
	for col, v := range encoded {
		if isNilRecord(v) {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		cols[col] = string(raw)
	}
	return cols, nil
}

func isNilRecord(v interface{}) bool {
	switch t := v.(type) {
	case *HumanDecision:
		return t == nil
	case *Escalation:
		return t == nil
	case *Feedback:
		return t == nil
	case *Note:
		return t == nil
	}
	return v == nil
}
