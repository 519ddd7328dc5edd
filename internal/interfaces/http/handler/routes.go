package handler

import (
	"github.com/erp/reconciliation/internal/interfaces/http/router"
)

// Routes returns the /reconciliation route group
func (h *ReconciliationHandler) Routes() *router.DomainGroup {
	g := router.NewDomainGroup("reconciliation", "/reconciliation")
	g.POST("/suggestions", h.GetSuggestions)
	g.POST("/suggestions/batch", h.GetBatchSuggestions)
	g.GET("/links", h.ListLinks)
	g.POST("/links", h.ConfirmLink)
	g.POST("/links/:id/void", h.VoidLink)
	g.POST("/feedback", h.RecordFeedback)
	g.POST("/feedback/export", h.ExportFeedback)
	g.PUT("/documents", h.UpsertDocuments)
	return g
}

// Routes returns the /ap-match route group
func (h *APMatchHandler) Routes() *router.DomainGroup {
	g := router.NewDomainGroup("ap-match", "/ap-match")
	g.POST("/suggestions", h.GetSuggestions)
	g.POST("/preview", h.Preview)
	g.POST("/confirm", h.Confirm)
	g.POST("/feedback", h.RecordFeedback)
	g.GET("/links", h.ListLinks)
	g.PUT("/po-lines", h.UpsertPOLines)
	return g
}

// Routes returns the /aliases route group
func (h *AliasHandler) Routes() *router.DomainGroup {
	g := router.NewDomainGroup("aliases", "/aliases")
	g.GET("", h.List)
	g.POST("/hits", h.RecordHit)
	g.POST("/promotions", h.CheckPromotions)
	return g
}

// Routes returns the /system route group
func (h *SystemHandler) Routes() *router.DomainGroup {
	g := router.NewDomainGroup("system", "/system")
	g.GET("/info", h.GetSystemInfo)
	g.GET("/ping", h.Ping)
	return g
}
