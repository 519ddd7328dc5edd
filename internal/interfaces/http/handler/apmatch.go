package handler

import (
	apmatchapp "github.com/erp/reconciliation/internal/application/apmatch"
	matchingapp "github.com/erp/reconciliation/internal/application/matching"
	"github.com/erp/reconciliation/internal/domain/apmatch"
	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/gin-gonic/gin"
)

// APMatchHandler serves purchase invoice to purchase order matching
type APMatchHandler struct {
	BaseHandler
	service  *apmatchapp.APMatchService
	feedback *matchingapp.FeedbackService
}

// NewAPMatchHandler creates a new APMatchHandler
func NewAPMatchHandler(service *apmatchapp.APMatchService, feedback *matchingapp.FeedbackService) *APMatchHandler {
	return &APMatchHandler{
		service:  service,
		feedback: feedback,
	}
}

// GetSuggestions godoc
// @ID           getAPMatchSuggestions
// @Summary      Suggest purchase orders for an invoice
// @Description  Ranks open purchase orders of the invoice vendor with a FIFO line allocation of the open invoice amount
// @Tags         ap-match
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID      header  string                false  "Tenant ID (optional for dev)"
// @Param        Accept-Language  header  string                false  "Language of reason_texts (en, es)"
// @Param        request          body    APSuggestionsRequest  true   "Invoice"
// @Success      200 {object} APIResponse[APSuggestionsResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /ap-match/suggestions [post]
func (h *APMatchHandler) GetSuggestions(c *gin.Context) {
	var req APSuggestionsRequest
	if !h.bindJSON(c, &req) {
		return
	}
	result, err := h.service.Suggest(c.Request.Context(), getTenantID(c), req.InvoiceID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toAPSuggestionsResponse(result, displayLanguage(c)))
}

// Preview godoc
// @ID           previewAPMatch
// @Summary      Preview an allocation
// @Description  Resolves the proposed links to PO lines and lists every rule they break. Nothing is stored.
// @Tags         ap-match
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID  header  string          false  "Tenant ID (optional for dev)"
// @Param        request      body    APLinksRequest  true   "Proposed links"
// @Success      200 {object} APIResponse[APPreviewResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /ap-match/preview [post]
func (h *APMatchHandler) Preview(c *gin.Context) {
	var req APLinksRequest
	if !h.bindJSON(c, &req) {
		return
	}
	preview, err := h.service.Preview(c.Request.Context(), getTenantID(c), apmatchapp.PreviewRequest{
		InvoiceID: req.InvoiceID,
		Links:     req.Links,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, APPreviewResponse{PreviewResult: preview, Valid: preview.Valid()})
}

// Confirm godoc
// @ID           confirmAPMatch
// @Summary      Confirm an allocation
// @Description  Stores the links and moves the PO line allocations in one transaction. Any violation rejects the whole set with 422 and the violations in error.details.
// @Tags         ap-match
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID  header  string            false  "Tenant ID (optional for dev)"
// @Param        X-User-ID    header  string            false  "Acting user, stored as confirmed_by"
// @Param        request      body    APConfirmRequest  true   "Links to confirm"
// @Success      201 {object} APIResponse[APConfirmResponse]
// @Success      200 {object} APIResponse[APConfirmResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Router       /ap-match/confirm [post]
func (h *APMatchHandler) Confirm(c *gin.Context) {
	var req APConfirmRequest
	if !h.bindJSON(c, &req) {
		return
	}
	appReq, err := req.toApp(getActor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	result, err := h.service.Confirm(c.Request.Context(), getTenantID(c), appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := APConfirmResponse{
		InvoiceID: result.InvoiceID,
		Links:     toApLinkResponses(result.Links),
		Created:   result.Created,
	}
	if result.Created {
		h.Created(c, resp)
		return
	}
	h.Success(c, resp)
}

// RecordFeedback godoc
// @ID           recordAPMatchFeedback
// @Summary      Record feedback on PO suggestions
// @Tags         ap-match
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID  header  string           false  "Tenant ID (optional for dev)"
// @Param        X-User-ID    header  string           false  "Acting user, stored as recorded_by"
// @Param        request      body    FeedbackRequest  true   "Feedback"
// @Success      201 {object} APIResponse[FeedbackResponse]
// @Failure      400 {object} ErrorResponse
// @Router       /ap-match/feedback [post]
func (h *APMatchHandler) RecordFeedback(c *gin.Context) {
	recordFeedback(c, &h.BaseHandler, h.feedback, matching.FeedbackScopeAPMatch)
}

// ListLinks godoc
// @ID           listAPMatchLinks
// @Summary      List the links of an invoice
// @Tags         ap-match
// @Produce      json
// @Param        X-Tenant-ID  header  string  false  "Tenant ID (optional for dev)"
// @Param        invoice_id   query   string  true   "Invoice ID"
// @Success      200 {object} APIResponse[[]ApLinkResponse]
// @Failure      400 {object} ErrorResponse
// @Router       /ap-match/links [get]
func (h *APMatchHandler) ListLinks(c *gin.Context) {
	var q APLinksQuery
	if !h.bindQuery(c, &q) {
		return
	}
	links, err := h.service.ListLinks(c.Request.Context(), getTenantID(c), q.InvoiceID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toApLinkResponses(links))
}

// UpsertPOLines godoc
// @ID           upsertAPMatchPOLines
// @Summary      Upsert purchase-order lines
// @Description  Inserts or refreshes PO line projections. Sent allocations only seed new lines; existing allocations belong to confirmed links.
// @Tags         ap-match
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID  header  string                false  "Tenant ID (optional for dev)"
// @Param        request      body    UpsertPOLinesRequest  true   "PO lines"
// @Success      200 {object} APIResponse[CountData]
// @Failure      400 {object} ErrorResponse
// @Router       /ap-match/po-lines [put]
func (h *APMatchHandler) UpsertPOLines(c *gin.Context) {
	var req UpsertPOLinesRequest
	if !h.bindJSON(c, &req) {
		return
	}
	lines := make([]apmatch.POLine, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = l.toDomain()
	}
	n, err := h.service.UpsertPOLines(c.Request.Context(), getTenantID(c), lines)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, CountData{Count: n})
}
