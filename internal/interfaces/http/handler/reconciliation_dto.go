package handler

import (
	"encoding/json"
	"time"

	matchingapp "github.com/erp/reconciliation/internal/application/matching"
	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/erp/reconciliation/internal/interfaces/http/dto"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
)

// SourceRecordRequest is the record to reconcile
// @Description Source record of a suggestions call
type SourceRecordRequest struct {
	Kind          string          `json:"kind" binding:"required,record_kind" example:"bank_movement"`
	ID            string          `json:"id" binding:"required,max=128" example:"mov-2024-03-0042"`
	Amount        decimal.Decimal `json:"amount" swaggertype:"string" example:"-1250000"`
	Date          Date            `json:"date" swaggertype:"string" example:"2024-03-18"`
	Currency      string          `json:"currency" binding:"omitempty,len=3" example:"CLP"`
	Reference     string          `json:"reference" binding:"max=500" example:"TRANSF FACT 10234 CONSTRUCTORA ANDES"`
	CounterpartID string          `json:"counterpart_id" binding:"max=128" example:"76.123.456-7"`
	ProjectID     string          `json:"project_id" binding:"max=128" example:"obra-las-condes"`
}

func (r SourceRecordRequest) toDomain() matching.SourceRecord {
	return matching.SourceRecord{
		Kind:          matching.RecordKind(r.Kind),
		ID:            r.ID,
		Amount:        r.Amount,
		Date:          r.Date.Time,
		Currency:      r.Currency,
		Reference:     r.Reference,
		CounterpartID: r.CounterpartID,
		ProjectID:     r.ProjectID,
	}
}

// SuggestionsRequest asks for ranked matches of one source
// @Description Request body for reconciliation suggestions
type SuggestionsRequest struct {
	Source         SourceRecordRequest `json:"source" binding:"required"`
	TargetKinds    []string            `json:"target_kinds" binding:"omitempty,max=6,dive,record_kind" example:"purchase_invoice"`
	AmountTolPct   *decimal.Decimal    `json:"amount_tol_pct" swaggertype:"string" example:"0.01"`
	DateWindowDays *int                `json:"date_window_days" binding:"omitempty,min=0,max=366" example:"15"`
}

func (r SuggestionsRequest) toApp() (matchingapp.SuggestionsRequest, error) {
	kinds, err := parseKinds(r.TargetKinds)
	if err != nil {
		return matchingapp.SuggestionsRequest{}, err
	}
	return matchingapp.SuggestionsRequest{
		Source:         r.Source.toDomain(),
		TargetKinds:    kinds,
		AmountTolPct:   r.AmountTolPct,
		DateWindowDays: r.DateWindowDays,
	}, nil
}

// BatchSuggestionsRequest asks for suggestions of many sources at once
// @Description Request body for batch suggestions
type BatchSuggestionsRequest struct {
	Items []SuggestionsRequest `json:"items" binding:"required,min=1,dive"`
}

// ToleranceResponse is the effective policy a result was computed with
type ToleranceResponse struct {
	AmountTolPct     decimal.Decimal `json:"amount_tol_pct" swaggertype:"string" example:"0.01"`
	NarrowTolPct     decimal.Decimal `json:"narrow_tol_pct" swaggertype:"string" example:"0.001"`
	DateWindowDays   int             `json:"date_window_days" example:"15"`
	SourceLayerOrder []string        `json:"source_layer_order"`
}

func toToleranceResponse(t matching.ToleranceConfig) ToleranceResponse {
	order := make([]string, len(t.SourceLayerOrder))
	for i, k := range t.SourceLayerOrder {
		order[i] = k.String()
	}
	return ToleranceResponse{
		AmountTolPct:     t.AmountTolPct,
		NarrowTolPct:     t.NarrowTolPct,
		DateWindowDays:   t.DateWindowDays,
		SourceLayerOrder: order,
	}
}

// SuggestionsResponse is the ranked list for one source. Items are single or
// combination suggestions distinguished by their kind field.
// @Description Reconciliation suggestions
type SuggestionsResponse struct {
	Source    matching.RecordRef    `json:"source"`
	Items     []matching.Suggestion `json:"items" swaggertype:"array,object"`
	Partial   bool                  `json:"partial"`
	Warning   *dto.Warning          `json:"warning,omitempty"`
	Tolerance ToleranceResponse     `json:"tolerance"`
	CacheHit  bool                  `json:"cache_hit"`
	// ReasonTexts renders each reason code in the Accept-Language of the request
	ReasonTexts map[string]string `json:"reason_texts"`
}

func toSuggestionsResponse(result *matchingapp.SuggestionsResult, tag language.Tag) SuggestionsResponse {
	set := result.Set
	items := set.Items
	if items == nil {
		items = []matching.Suggestion{}
	}
	codes := make([][]matching.ReasonCode, len(items))
	for i, item := range items {
		codes[i] = item.Reasons()
	}
	return SuggestionsResponse{
		Source:      set.Source,
		Items:       items,
		Partial:     set.Partial,
		Tolerance:   toToleranceResponse(set.Tolerance),
		CacheHit:    result.CacheHit,
		ReasonTexts: reasonTexts(tag, codes...),
		Warning:     warningOf(result.Warning),
	}
}

func warningOf(err error) *dto.Warning {
	if err == nil {
		return nil
	}
	return &dto.Warning{Code: dto.ErrCodeTransient, Message: err.Error()}
}

// BatchItemResponse is one entry of a batch; exactly one of result and error is set
type BatchItemResponse struct {
	Index  int                  `json:"index"`
	Result *SuggestionsResponse `json:"result,omitempty"`
	Error  *dto.ErrorInfo       `json:"error,omitempty"`
}

// BatchSuggestionsResponse holds the batch in request order
// @Description Batch reconciliation suggestions
type BatchSuggestionsResponse struct {
	Items []BatchItemResponse `json:"items"`
}

// ConfirmLinkRequest confirms a full link set for one source
// @Description Request body for confirming a reconciliation link
type ConfirmLinkRequest struct {
	Source     string            `json:"source" binding:"required,record_ref" example:"bank_movement:mov-2024-03-0042"`
	Targets    []string          `json:"targets" binding:"required,min=1,max=50,dive,record_ref" example:"purchase_invoice:10234"`
	Confidence float64           `json:"confidence" binding:"min=0,max=1" example:"0.92"`
	Reasons    []string          `json:"reasons" example:"reference_match"`
	Metadata   map[string]string `json:"metadata"`
}

func (r ConfirmLinkRequest) toDomain(actor string) (matching.ConfirmInput, error) {
	source, err := matching.ParseRecordRef(r.Source)
	if err != nil {
		return matching.ConfirmInput{}, err
	}
	targets, err := parseRefs(r.Targets)
	if err != nil {
		return matching.ConfirmInput{}, err
	}
	reasons, err := matching.ParseReasonCodes(r.Reasons)
	if err != nil {
		return matching.ConfirmInput{}, err
	}
	return matching.ConfirmInput{
		Source:      source,
		Targets:     targets,
		Confidence:  r.Confidence,
		Reasons:     reasons,
		Metadata:    r.Metadata,
		ConfirmedBy: actor,
	}, nil
}

// VoidLinkRequest retires an active link
// @Description Request body for voiding a link
type VoidLinkRequest struct {
	Reason string `json:"reason" binding:"required,max=500" example:"Bank reversed the transfer"`
}

// ListLinksQuery selects the links of one source
type ListLinksQuery struct {
	SourceKey string `form:"source_key" binding:"required,record_ref" example:"bank_movement:mov-2024-03-0042"`
}

// LinkTargetResponse is one settled document
type LinkTargetResponse struct {
	Kind          string          `json:"kind" example:"purchase_invoice"`
	ID            string          `json:"id" example:"10234"`
	Amount        decimal.Decimal `json:"amount" swaggertype:"string" example:"1250000"`
	CounterpartID string          `json:"counterpart_id,omitempty"`
}

// LinkResponse is a stored reconciliation link
// @Description Reconciliation link
type LinkResponse struct {
	ID             uuid.UUID            `json:"id"`
	TenantID       uuid.UUID            `json:"tenant_id"`
	Source         string               `json:"source" example:"bank_movement:mov-2024-03-0042"`
	SourceAmount   decimal.Decimal      `json:"source_amount" swaggertype:"string"`
	Targets        []LinkTargetResponse `json:"targets"`
	Amount         decimal.Decimal      `json:"amount" swaggertype:"string"`
	Difference     decimal.Decimal      `json:"difference" swaggertype:"string"`
	Confidence     float64              `json:"confidence"`
	Reasons        []string             `json:"reasons"`
	Metadata       map[string]string    `json:"metadata,omitempty"`
	IdempotencyKey string               `json:"idempotency_key"`
	Status         string               `json:"status" example:"active"`
	ConfirmedAt    time.Time            `json:"confirmed_at"`
	ConfirmedBy    string               `json:"confirmed_by,omitempty"`
	VoidedAt       *time.Time           `json:"voided_at,omitempty"`
	VoidedBy       string               `json:"voided_by,omitempty"`
	VoidReason     string               `json:"void_reason,omitempty"`
}

func toLinkResponse(l *matching.ReconciliationLink) LinkResponse {
	targets := make([]LinkTargetResponse, len(l.Targets))
	for i, t := range l.Targets {
		targets[i] = LinkTargetResponse{
			Kind:          t.Ref.Kind.String(),
			ID:            t.Ref.ID,
			Amount:        t.Amount,
			CounterpartID: t.CounterpartID,
		}
	}
	return LinkResponse{
		ID:             l.ID,
		TenantID:       l.TenantID,
		Source:         l.Source.Key(),
		SourceAmount:   l.SourceAmount,
		Targets:        targets,
		Amount:         l.Amount,
		Difference:     l.Difference,
		Confidence:     l.Confidence,
		Reasons:        matching.ReasonStrings(l.Reasons),
		Metadata:       l.Metadata,
		IdempotencyKey: l.IdempotencyKey,
		Status:         string(l.Status),
		ConfirmedAt:    l.ConfirmedAt,
		ConfirmedBy:    l.ConfirmedBy,
		VoidedAt:       l.VoidedAt,
		VoidedBy:       l.VoidedBy,
		VoidReason:     l.VoidReason,
	}
}

func toLinkResponses(links []matching.ReconciliationLink) []LinkResponse {
	out := make([]LinkResponse, len(links))
	for i := range links {
		out[i] = toLinkResponse(&links[i])
	}
	return out
}

// ConfirmLinkResponse is the stored link; created is false for a repeated confirm
// @Description Confirmed reconciliation link
type ConfirmLinkResponse struct {
	Link    LinkResponse `json:"link"`
	Created bool         `json:"created"`
}

// FeedbackRequest records one accept or reject decision
// @Description Request body for suggestion feedback
type FeedbackRequest struct {
	SubjectKey string          `json:"subject_key" binding:"required,max=256" example:"bank_movement:mov-2024-03-0042"`
	Accepted   bool            `json:"accepted" example:"false"`
	Reason     string          `json:"reason" binding:"max=500" example:"Wrong supplier"`
	Candidates json.RawMessage `json:"candidates" swaggertype:"object"`
	Chosen     json.RawMessage `json:"chosen" swaggertype:"object"`
}

func (r FeedbackRequest) toApp(scope matching.FeedbackScope, actor string) matchingapp.RecordFeedbackInput {
	return matchingapp.RecordFeedbackInput{
		Scope:      scope,
		SubjectKey: r.SubjectKey,
		Accepted:   r.Accepted,
		Reason:     r.Reason,
		Candidates: r.Candidates,
		Chosen:     r.Chosen,
		RecordedBy: actor,
	}
}

// FeedbackResponse is a stored feedback event
// @Description Feedback event
type FeedbackResponse struct {
	ID         uuid.UUID       `json:"id"`
	Scope      string          `json:"scope" example:"reconciliation"`
	SubjectKey string          `json:"subject_key"`
	Accepted   bool            `json:"accepted"`
	Reason     string          `json:"reason,omitempty"`
	Candidates json.RawMessage `json:"candidates,omitempty" swaggertype:"object"`
	Chosen     json.RawMessage `json:"chosen,omitempty" swaggertype:"object"`
	RecordedBy string          `json:"recorded_by,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
}

func toFeedbackResponse(e *matching.FeedbackEvent) FeedbackResponse {
	return FeedbackResponse{
		ID:         e.ID,
		Scope:      string(e.Scope),
		SubjectKey: e.SubjectKey,
		Accepted:   e.Accepted,
		Reason:     e.Reason,
		Candidates: e.Candidates,
		Chosen:     e.Chosen,
		RecordedBy: e.RecordedBy,
		RecordedAt: e.RecordedAt,
	}
}

// ExportFeedbackRequest selects the feedback window to archive
// @Description Request body for a feedback export
type ExportFeedbackRequest struct {
	Scope string    `json:"scope" binding:"required,oneof=reconciliation ap_match" example:"reconciliation"`
	From  time.Time `json:"from" binding:"required" example:"2024-03-01T00:00:00Z"`
	To    time.Time `json:"to" binding:"required" example:"2024-04-01T00:00:00Z"`
}

// DocumentRequest is one document projection pushed by an owning domain
// @Description Document projection
type DocumentRequest struct {
	Kind          string          `json:"kind" binding:"required,record_kind" example:"purchase_invoice"`
	ID            string          `json:"id" binding:"required,max=128" example:"10234"`
	Amount        decimal.Decimal `json:"amount" swaggertype:"string" example:"1250000"`
	Date          Date            `json:"date" swaggertype:"string" example:"2024-03-15"`
	Currency      string          `json:"currency" binding:"omitempty,len=3" example:"CLP"`
	Reference     string          `json:"reference" binding:"max=500" example:"FACT 10234"`
	CounterpartID string          `json:"counterpart_id" binding:"max=128" example:"76.123.456-7"`
	ProjectID     string          `json:"project_id" binding:"max=128"`
	POReference   string          `json:"po_reference" binding:"max=128" example:"OC-5531"`
}

func (r DocumentRequest) toDomain() matching.CandidateTarget {
	return matching.CandidateTarget{
		Kind:          matching.RecordKind(r.Kind),
		ID:            r.ID,
		Amount:        r.Amount,
		Date:          r.Date.Time,
		Currency:      r.Currency,
		Reference:     r.Reference,
		CounterpartID: r.CounterpartID,
		ProjectID:     r.ProjectID,
		POReference:   r.POReference,
	}
}

// UpsertDocumentsRequest refreshes document projections
// @Description Request body for document upserts
type UpsertDocumentsRequest struct {
	Documents []DocumentRequest `json:"documents" binding:"required,min=1,max=1000,dive"`
}
