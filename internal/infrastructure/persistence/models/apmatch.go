package models

import (
	"time"

	"github.com/erp/reconciliation/internal/domain/apmatch"
	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// POLineModel is the projection of a purchase-order line with its running allocations
type POLineModel struct {
	TenantID        uuid.UUID       `gorm:"type:uuid;primaryKey;index:idx_po_lines_vendor,priority:1"`
	POID            string          `gorm:"column:po_id;type:varchar(100);primaryKey"`
	LineID          string          `gorm:"type:varchar(100);primaryKey"`
	PONumber        string          `gorm:"column:po_number;type:varchar(100)"`
	LineNo          int             `gorm:"not null;default:0"`
	VendorID        string          `gorm:"type:varchar(100);not null;index:idx_po_lines_vendor,priority:2"`
	ProjectID       string          `gorm:"type:varchar(100)"`
	Description     string          `gorm:"type:varchar(500)"`
	Currency        string          `gorm:"type:varchar(3)"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(20,6);not null"`
	QtyAvailable    decimal.Decimal `gorm:"type:decimal(20,6);not null"`
	AllocatedAmount decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0"`
	AllocatedQty    decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0"`
	UpdatedAt       time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (POLineModel) TableName() string {
	return "purchase_order_lines"
}

// ToDomain converts the persistence model to a domain POLine
func (m *POLineModel) ToDomain() apmatch.POLine {
	return apmatch.POLine{
		POID:            m.POID,
		PONumber:        m.PONumber,
		LineID:          m.LineID,
		LineNo:          m.LineNo,
		VendorID:        m.VendorID,
		ProjectID:       m.ProjectID,
		Description:     m.Description,
		Currency:        m.Currency,
		UnitPrice:       m.UnitPrice,
		QtyAvailable:    m.QtyAvailable,
		AllocatedAmount: m.AllocatedAmount,
		AllocatedQty:    m.AllocatedQty,
	}
}

// FromDomain populates the persistence model from a domain POLine
func (m *POLineModel) FromDomain(tenantID uuid.UUID, l apmatch.POLine, now time.Time) {
	m.TenantID = tenantID
	m.POID = l.POID
	m.LineID = l.LineID
	m.PONumber = l.PONumber
	m.LineNo = l.LineNo
	m.VendorID = l.VendorID
	m.ProjectID = l.ProjectID
	m.Description = l.Description
	m.Currency = l.Currency
	m.UnitPrice = l.UnitPrice
	m.QtyAvailable = l.QtyAvailable
	m.AllocatedAmount = l.AllocatedAmount
	m.AllocatedQty = l.AllocatedQty
	m.UpdatedAt = now
}

// ApMatchLinkModel is one confirmed invoice to PO line allocation
type ApMatchLinkModel struct {
	TenantModel
	BatchID     uuid.UUID        `gorm:"type:uuid;not null;index"`
	BatchKey    string           `gorm:"type:varchar(64);not null;index:idx_ap_links_batch_key,priority:2"`
	InvoiceID   string           `gorm:"type:varchar(100);not null;index:idx_ap_links_invoice,priority:2"`
	POID        string           `gorm:"column:po_id;type:varchar(100);not null"`
	POLineID    string           `gorm:"column:po_line_id;type:varchar(100);not null"`
	Amount      decimal.Decimal  `gorm:"type:decimal(20,6);not null"`
	Qty         *decimal.Decimal `gorm:"type:decimal(20,6)"`
	Confidence  float64          `gorm:"not null"`
	ReasonsJSON string           `gorm:"column:reasons;type:jsonb;not null;default:'[]'"`
	ConfirmedAt time.Time        `gorm:"not null"`
	ConfirmedBy string           `gorm:"type:varchar(100)"`
}

// TableName returns the table name for GORM
func (ApMatchLinkModel) TableName() string {
	return "ap_match_links"
}

// ToDomain converts the persistence model to a domain ApMatchLink
func (m *ApMatchLinkModel) ToDomain() apmatch.ApMatchLink {
	link := apmatch.ApMatchLink{
		ID:          m.ID,
		TenantID:    m.TenantID,
		BatchID:     m.BatchID,
		BatchKey:    m.BatchKey,
		InvoiceID:   m.InvoiceID,
		POID:        m.POID,
		POLineID:    m.POLineID,
		Amount:      m.Amount,
		Qty:         m.Qty,
		Confidence:  m.Confidence,
		Reasons:     make([]matching.ReasonCode, 0),
		ConfirmedAt: m.ConfirmedAt,
		ConfirmedBy: m.ConfirmedBy,
	}
	var codes []string
	decodeJSON(m.ReasonsJSON, "reasons", &codes)
	if reasons, err := matching.ParseReasonCodes(codes); err == nil {
		link.Reasons = reasons
	}
	return link
}

// FromDomain populates the persistence model from a domain ApMatchLink
func (m *ApMatchLinkModel) FromDomain(l *apmatch.ApMatchLink) {
	m.ID = l.ID
	m.TenantID = l.TenantID
	m.CreatedAt = l.ConfirmedAt
	m.BatchID = l.BatchID
	m.BatchKey = l.BatchKey
	m.InvoiceID = l.InvoiceID
	m.POID = l.POID
	m.POLineID = l.POLineID
	m.Amount = l.Amount
	m.Qty = l.Qty
	m.Confidence = l.Confidence
	m.ReasonsJSON = encodeJSON(matching.ReasonStrings(l.Reasons), "[]")
	m.ConfirmedAt = l.ConfirmedAt
	m.ConfirmedBy = l.ConfirmedBy
}
