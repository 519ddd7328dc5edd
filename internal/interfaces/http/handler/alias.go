package handler

import (
	"time"

	aliasapp "github.com/erp/reconciliation/internal/application/alias"
	"github.com/erp/reconciliation/internal/domain/alias"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ListAliasesQuery filters alias candidates
type ListAliasesQuery struct {
	MinHits  *int64 `form:"min_hits" binding:"omitempty,min=0"`
	Promoted *bool  `form:"promoted"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset   int    `form:"offset" binding:"omitempty,min=0"`
}

// RecordHitRequest reports a description matched to a target
// @Description Request body for an alias hit
type RecordHitRequest struct {
	Pattern  string `json:"pattern" binding:"required,max=500" example:"TRANSF 0012345 CONSTRUCTORA ANDES"`
	TargetID string `json:"target_id" binding:"required,max=128" example:"76.123.456-7"`
}

// PromotionsRequest runs a promotion sweep
// @Description Request body for an alias promotion sweep
type PromotionsRequest struct {
	MinHits *int64 `json:"min_hits" binding:"omitempty,min=1" example:"3"`
}

// CandidateResponse is an alias candidate
type CandidateResponse struct {
	ID         uuid.UUID  `json:"id"`
	Pattern    string     `json:"pattern"`
	TargetID   string     `json:"target_id"`
	Hits       int64      `json:"hits"`
	LastHitAt  time.Time  `json:"last_hit_at"`
	PromotedAt *time.Time `json:"promoted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func toCandidateResponse(c *alias.Candidate) CandidateResponse {
	return CandidateResponse{
		ID:         c.ID,
		Pattern:    c.Pattern,
		TargetID:   c.TargetID,
		Hits:       c.Hits,
		LastHitAt:  c.LastHitAt,
		PromotedAt: c.PromotedAt,
		CreatedAt:  c.CreatedAt,
	}
}

func toCandidateResponses(cs []alias.Candidate) []CandidateResponse {
	out := make([]CandidateResponse, len(cs))
	for i := range cs {
		out[i] = toCandidateResponse(&cs[i])
	}
	return out
}

// RecordHitResponse is the candidate after a hit
type RecordHitResponse struct {
	Candidate CandidateResponse `json:"candidate"`
	Promoted  bool              `json:"promoted"`
}

// PromotionsResponse lists the candidates a sweep promoted
type PromotionsResponse struct {
	Promoted []CandidateResponse `json:"promoted"`
	Count    int                 `json:"count"`
}

// AliasHandler serves the alias learner
type AliasHandler struct {
	BaseHandler
	service *aliasapp.AliasService
}

// NewAliasHandler creates a new AliasHandler
func NewAliasHandler(service *aliasapp.AliasService) *AliasHandler {
	return &AliasHandler{service: service}
}

// List godoc
// @ID           listAliases
// @Summary      List alias candidates
// @Description  Pages through learned patterns, most frequent first
// @Tags         aliases
// @Produce      json
// @Param        X-Tenant-ID  header  string   false  "Tenant ID (optional for dev)"
// @Param        min_hits     query   int      false  "Minimum hit count"
// @Param        promoted     query   boolean  false  "Only promoted (true) or unpromoted (false) candidates"
// @Param        limit        query   int      false  "Page size" default(50) maximum(500)
// @Param        offset       query   int      false  "Page offset" default(0)
// @Success      200 {object} APIResponse[[]CandidateResponse]
// @Failure      400 {object} ErrorResponse
// @Router       /aliases [get]
func (h *AliasHandler) List(c *gin.Context) {
	var q ListAliasesQuery
	if !h.bindQuery(c, &q) {
		return
	}
	result, err := h.service.List(c.Request.Context(), getTenantID(c), alias.ListFilter{
		MinHits:  q.MinHits,
		Promoted: q.Promoted,
		Limit:    q.Limit,
		Offset:   q.Offset,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	limit := q.Limit
	if limit == 0 {
		limit = len(result.Items)
	}
	h.SuccessWithMeta(c, toCandidateResponses(result.Items), result.Total, limit, q.Offset)
}

// RecordHit godoc
// @ID           recordAliasHit
// @Summary      Record an alias hit
// @Description  Counts one match of a normalized description to a target. The candidate is promoted once it reaches the configured threshold.
// @Tags         aliases
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID  header  string            false  "Tenant ID (optional for dev)"
// @Param        request      body    RecordHitRequest  true   "Hit"
// @Success      200 {object} APIResponse[RecordHitResponse]
// @Failure      400 {object} ErrorResponse
// @Router       /aliases/hits [post]
func (h *AliasHandler) RecordHit(c *gin.Context) {
	var req RecordHitRequest
	if !h.bindJSON(c, &req) {
		return
	}
	result, err := h.service.RecordHit(c.Request.Context(), getTenantID(c), alias.HitInput{
		Pattern:  req.Pattern,
		TargetID: req.TargetID,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, RecordHitResponse{
		Candidate: toCandidateResponse(result.Candidate),
		Promoted:  result.Promoted,
	})
}

// CheckPromotions godoc
// @ID           checkAliasPromotions
// @Summary      Promote eligible alias candidates
// @Description  Promotes every unpromoted candidate at or above min_hits, defaulting to the configured threshold
// @Tags         aliases
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID  header  string             false  "Tenant ID (optional for dev)"
// @Param        request      body    PromotionsRequest  false  "Threshold override"
// @Success      200 {object} APIResponse[PromotionsResponse]
// @Failure      400 {object} ErrorResponse
// @Router       /aliases/promotions [post]
func (h *AliasHandler) CheckPromotions(c *gin.Context) {
	var req PromotionsRequest
	if c.Request.ContentLength != 0 && !h.bindJSON(c, &req) {
		return
	}
	promoted, err := h.service.CheckPromotion(c.Request.Context(), getTenantID(c), req.MinHits)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, PromotionsResponse{
		Promoted: toCandidateResponses(promoted),
		Count:    len(promoted),
	})
}
