package handler

import (
	"net/http"

	matchingapp "github.com/erp/reconciliation/internal/application/matching"
	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/erp/reconciliation/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ReconciliationHandler serves suggestions, links and feedback of the bank
// reconciliation flow
type ReconciliationHandler struct {
	BaseHandler
	service  *matchingapp.ReconciliationService
	feedback *matchingapp.FeedbackService
}

// NewReconciliationHandler creates a new ReconciliationHandler
func NewReconciliationHandler(service *matchingapp.ReconciliationService, feedback *matchingapp.FeedbackService) *ReconciliationHandler {
	return &ReconciliationHandler{
		service:  service,
		feedback: feedback,
	}
}

// GetSuggestions godoc
// @ID           getReconciliationSuggestions
// @Summary      Suggest matches for a source record
// @Description  Ranks single documents and document combinations that could settle the source. A search that ran out of budget returns partial=true with an ERR_TRANSIENT warning.
// @Tags         reconciliation
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID      header  string              false  "Tenant ID (optional for dev)"
// @Param        Accept-Language  header  string              false  "Language of reason_texts (en, es)"
// @Param        request          body    SuggestionsRequest  true   "Source record"
// @Success      200 {object} APIResponse[SuggestionsResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Router       /reconciliation/suggestions [post]
func (h *ReconciliationHandler) GetSuggestions(c *gin.Context) {
	var req SuggestionsRequest
	if !h.bindJSON(c, &req) {
		return
	}
	appReq, err := req.toApp()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.service.Suggest(c.Request.Context(), getTenantID(c), appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := toSuggestionsResponse(result, displayLanguage(c))
	if resp.Warning != nil {
		h.SuccessWithWarnings(c, resp, *resp.Warning)
		return
	}
	h.Success(c, resp)
}

// GetBatchSuggestions godoc
// @ID           getReconciliationSuggestionsBatch
// @Summary      Suggest matches for many source records
// @Description  Runs suggestions concurrently. A failing item carries its own error; the batch itself only fails on invalid input or cancellation.
// @Tags         reconciliation
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID  header  string                   false  "Tenant ID (optional for dev)"
// @Param        request      body    BatchSuggestionsRequest  true   "Source records"
// @Success      200 {object} APIResponse[BatchSuggestionsResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Router       /reconciliation/suggestions/batch [post]
func (h *ReconciliationHandler) GetBatchSuggestions(c *gin.Context) {
	var req BatchSuggestionsRequest
	if !h.bindJSON(c, &req) {
		return
	}
	appReqs := make([]matchingapp.SuggestionsRequest, len(req.Items))
	for i, item := range req.Items {
		appReq, err := item.toApp()
		if err != nil {
			h.ValidationFailed(c, err.Error())
			return
		}
		appReqs[i] = appReq
	}

	items, err := h.service.SuggestBatch(c.Request.Context(), getTenantID(c), appReqs)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	tag := displayLanguage(c)
	requestID := getRequestID(c)
	resp := BatchSuggestionsResponse{Items: make([]BatchItemResponse, len(items))}
	var warnings []dto.Warning
	for i, item := range items {
		out := BatchItemResponse{Index: item.Index}
		if item.Err != nil {
			code := dto.NormalizeErrorCode(shared.CodeOf(item.Err))
			if code == "" {
				code = dto.ErrCodeInternal
			}
			out.Error = dto.NewErrorResponseWithRequestID(code, item.Err.Error(), requestID).Error
		} else {
			r := toSuggestionsResponse(item.Result, tag)
			out.Result = &r
			if r.Warning != nil {
				warnings = append(warnings, *r.Warning)
			}
		}
		resp.Items[i] = out
	}
	h.SuccessWithWarnings(c, resp, warnings...)
}

// ListLinks godoc
// @ID           listReconciliationLinks
// @Summary      List links of a source record
// @Description  Returns active and voided links whose source is source_key, newest first
// @Tags         reconciliation
// @Produce      json
// @Param        X-Tenant-ID  header  string  false  "Tenant ID (optional for dev)"
// @Param        source_key   query   string  true   "Source record key kind:id"
// @Success      200 {object} APIResponse[[]LinkResponse]
// @Failure      400 {object} ErrorResponse
// @Router       /reconciliation/links [get]
func (h *ReconciliationHandler) ListLinks(c *gin.Context) {
	var q ListLinksQuery
	if !h.bindQuery(c, &q) {
		return
	}
	links, err := h.service.ListLinks(c.Request.Context(), getTenantID(c), q.SourceKey)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toLinkResponses(links))
}

// ConfirmLink godoc
// @ID           confirmReconciliationLink
// @Summary      Confirm a reconciliation link
// @Description  Stores the full link set of a source. Repeating an identical confirm returns the stored link with created=false. A record already held by another active link is a 409; a total outside tolerance is a 422.
// @Tags         reconciliation
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID  header  string              false  "Tenant ID (optional for dev)"
// @Param        X-User-ID    header  string              false  "Acting user, stored as confirmed_by"
// @Param        request      body    ConfirmLinkRequest  true   "Link set"
// @Success      201 {object} APIResponse[ConfirmLinkResponse]
// @Success      200 {object} APIResponse[ConfirmLinkResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Router       /reconciliation/links [post]
func (h *ReconciliationHandler) ConfirmLink(c *gin.Context) {
	var req ConfirmLinkRequest
	if !h.bindJSON(c, &req) {
		return
	}
	input, err := req.toDomain(getActor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.service.Confirm(c.Request.Context(), getTenantID(c), input)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := ConfirmLinkResponse{Link: toLinkResponse(result.Link), Created: result.Created}
	if result.Created {
		h.Created(c, resp)
		return
	}
	h.Success(c, resp)
}

// VoidLink godoc
// @ID           voidReconciliationLink
// @Summary      Void a reconciliation link
// @Description  Retires an active link so its records can be reconciled again. The link content is kept.
// @Tags         reconciliation
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID  header  string           false  "Tenant ID (optional for dev)"
// @Param        X-User-ID    header  string           false  "Acting user, stored as voided_by"
// @Param        id           path    string           true   "Link ID" format(uuid)
// @Param        request      body    VoidLinkRequest  true   "Void reason"
// @Success      200 {object} APIResponse[LinkResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /reconciliation/links/{id}/void [post]
func (h *ReconciliationHandler) VoidLink(c *gin.Context) {
	var uri dto.IDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		h.ValidationFailed(c, "link id must be a UUID")
		return
	}
	var req VoidLinkRequest
	if !h.bindJSON(c, &req) {
		return
	}

	link, err := h.service.Void(c.Request.Context(), getTenantID(c), matchingapp.VoidInput{
		LinkID:   uuid.MustParse(uri.ID),
		Reason:   req.Reason,
		VoidedBy: getActor(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toLinkResponse(link))
}

// RecordFeedback godoc
// @ID           recordReconciliationFeedback
// @Summary      Record feedback on suggestions
// @Description  Appends an accept or reject decision with the candidates the user saw
// @Tags         reconciliation
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID  header  string           false  "Tenant ID (optional for dev)"
// @Param        X-User-ID    header  string           false  "Acting user, stored as recorded_by"
// @Param        request      body    FeedbackRequest  true   "Feedback"
// @Success      201 {object} APIResponse[FeedbackResponse]
// @Failure      400 {object} ErrorResponse
// @Router       /reconciliation/feedback [post]
func (h *ReconciliationHandler) RecordFeedback(c *gin.Context) {
	recordFeedback(c, &h.BaseHandler, h.feedback, matching.FeedbackScopeReconciliation)
}

// ExportFeedback godoc
// @ID           exportReconciliationFeedback
// @Summary      Export feedback to the archive
// @Description  Writes the feedback of one scope in [from, to) as NDJSON to object storage and returns a download link
// @Tags         reconciliation
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID  header  string                 false  "Tenant ID (optional for dev)"
// @Param        request      body    ExportFeedbackRequest  true   "Export window"
// @Success      201 {object} APIResponse[matchingapp.ExportFeedbackResult]
// @Failure      400 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Router       /reconciliation/feedback/export [post]
func (h *ReconciliationHandler) ExportFeedback(c *gin.Context) {
	var req ExportFeedbackRequest
	if !h.bindJSON(c, &req) {
		return
	}
	result, err := h.feedback.Export(c.Request.Context(), getTenantID(c), matchingapp.ExportFeedbackInput{
		Scope: matching.FeedbackScope(req.Scope),
		From:  req.From,
		To:    req.To,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// UpsertDocuments godoc
// @ID           upsertReconciliationDocuments
// @Summary      Upsert document projections
// @Description  Inserts or refreshes the documents suggestions are computed from and drops the tenant's cached suggestions
// @Tags         reconciliation
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID  header  string                  false  "Tenant ID (optional for dev)"
// @Param        request      body    UpsertDocumentsRequest  true   "Documents"
// @Success      200 {object} APIResponse[CountData]
// @Failure      400 {object} ErrorResponse
// @Router       /reconciliation/documents [put]
func (h *ReconciliationHandler) UpsertDocuments(c *gin.Context) {
	var req UpsertDocumentsRequest
	if !h.bindJSON(c, &req) {
		return
	}
	docs := make([]matching.CandidateTarget, len(req.Documents))
	for i, d := range req.Documents {
		docs[i] = d.toDomain()
	}
	n, err := h.service.UpsertDocuments(c.Request.Context(), getTenantID(c), docs)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, CountData{Count: n})
}

// recordFeedback is shared by the reconciliation and AP match feedback routes
func recordFeedback(c *gin.Context, h *BaseHandler, svc *matchingapp.FeedbackService, scope matching.FeedbackScope) {
	var req FeedbackRequest
	if !h.bindJSON(c, &req) {
		return
	}
	event, err := svc.Record(c.Request.Context(), getTenantID(c), req.toApp(scope, getActor(c)))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(toFeedbackResponse(event)))
}
