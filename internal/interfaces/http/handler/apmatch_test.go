package handler

import (
	"net/http"
	"testing"

	"github.com/erp/reconciliation/internal/interfaces/http/dto"
	"github.com/erp/reconciliation/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vendor = "76.123.456-7"

func poLine(po, line string, lineNo int, unitPrice, qty string) map[string]any {
	return map[string]any{
		"po_id":         po,
		"po_number":     po,
		"line_id":       line,
		"line_no":       lineNo,
		"vendor_id":     vendor,
		"currency":      "CLP",
		"unit_price":    unitPrice,
		"qty_available": qty,
	}
}

// seedAP stores invoice F-900 for 1,000,000 and order OC-1 with 500,000 + 1,000,000 of capacity
func seedAP(t *testing.T, s *apiServer) {
	t.Helper()
	s.seedDocuments(t, document("purchase_invoice", "F-900", 1_000_000, "2024-03-15", "FACT 900 OC-1", vendor))
	w := s.do(t, http.MethodPut, "/api/v1/ap-match/po-lines", map[string]any{
		"lines": []any{
			poLine("OC-1", "1", 1, "50000", "10"),
			poLine("OC-1", "2", 2, "100000", "10"),
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	_, data := decode(t, w)
	require.EqualValues(t, 2, data["count"])
}

func TestAPMatchHandler_GetSuggestions(t *testing.T) {
	s := newAPIServer(t)
	seedAP(t, s)

	w := s.do(t, http.MethodPost, "/api/v1/ap-match/suggestions", map[string]any{"invoice_id": "F-900"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	_, data := decode(t, w)
	assert.Equal(t, "1000000", data["open_amount"])
	invoice := data["invoice"].(map[string]any)
	assert.Equal(t, "F-900", invoice["id"])
	assert.Equal(t, "2024-03-15", invoice["date"])

	suggestions := data["suggestions"].([]any)
	require.Len(t, suggestions, 1)
	first := suggestions[0].(map[string]any)
	assert.Equal(t, "OC-1", first["po_id"])
	allocations := first["allocations"].([]any)
	require.NotEmpty(t, allocations)
	assert.Equal(t, "1", allocations[0].(map[string]any)["po_line_id"])
}

func TestAPMatchHandler_GetSuggestions_UnknownInvoice(t *testing.T) {
	s := newAPIServer(t)
	w := s.do(t, http.MethodPost, "/api/v1/ap-match/suggestions", map[string]any{"invoice_id": "nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	resp, _ := decode(t, w)
	assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
}

func TestAPMatchHandler_Preview(t *testing.T) {
	s := newAPIServer(t)
	seedAP(t, s)

	t.Run("order level amount is spread over lines", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/ap-match/preview", map[string]any{
			"invoice_id": "F-900",
			"links":      []any{map[string]any{"po_id": "OC-1", "amount": "1000000"}},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		_, data := decode(t, w)
		assert.Equal(t, true, data["valid"])
		assert.Empty(t, data["violations"])
		allocations := data["allocations"].([]any)
		require.Len(t, allocations, 2)
		assert.Equal(t, "500000", allocations[0].(map[string]any)["amount"])
		assert.Equal(t, "500000", allocations[1].(map[string]any)["amount"])
		tolerances := data["tolerances"].(map[string]any)
		assert.Equal(t, "1000000", tolerances["proposed_total"])
	})

	t.Run("over allocation reports violations", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/ap-match/preview", map[string]any{
			"invoice_id": "F-900",
			"links":      []any{map[string]any{"po_id": "OC-1", "po_line_id": "1", "amount": "600000"}},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		_, data := decode(t, w)
		assert.Equal(t, false, data["valid"])
		violations := data["violations"].([]any)
		require.Len(t, violations, 1)
		assert.Equal(t, "amount_exceeds_remaining", violations[0].(map[string]any)["code"])
	})
}

func TestAPMatchHandler_Confirm(t *testing.T) {
	s := newAPIServer(t)
	seedAP(t, s)
	body := map[string]any{
		"invoice_id": "F-900",
		"links": []any{
			map[string]any{"po_id": "OC-1", "po_line_id": "1", "amount": "400000"},
			map[string]any{"po_id": "OC-1", "po_line_id": "2", "amount": "600000"},
		},
		"confidence": 0.9,
		"reasons":    []string{"po_reference"},
	}

	w := s.do(t, http.MethodPost, "/api/v1/ap-match/confirm", body, middleware.ActorHeaderKey, "compras@obra.cl")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	_, data := decode(t, w)
	assert.Equal(t, true, data["created"])
	links := data["links"].([]any)
	require.Len(t, links, 2)
	for _, raw := range links {
		l := raw.(map[string]any)
		assert.Equal(t, "F-900", l["invoice_id"])
		assert.Equal(t, "compras@obra.cl", l["confirmed_by"])
		assert.Equal(t, []any{"po_reference"}, l["reasons"])
	}

	t.Run("repeat returns the stored links", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/ap-match/confirm", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		_, data := decode(t, w)
		assert.Equal(t, false, data["created"])
		assert.Len(t, data["links"], 2)
	})

	t.Run("invoice is fully allocated", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/ap-match/confirm", map[string]any{
			"invoice_id": "F-900",
			"links":      []any{map[string]any{"po_id": "OC-1", "po_line_id": "2", "amount": "100000"}},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("links are listed by invoice", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/ap-match/links?invoice_id=F-900", nil)
		require.Equal(t, http.StatusOK, w.Code)
		_, list := decodeList(t, w)
		assert.Len(t, list, 2)
	})
}

func TestAPMatchHandler_Confirm_RejectsOverAllocation(t *testing.T) {
	s := newAPIServer(t)
	seedAP(t, s)

	w := s.do(t, http.MethodPost, "/api/v1/ap-match/confirm", map[string]any{
		"invoice_id": "F-900",
		"links":      []any{map[string]any{"po_id": "OC-1", "po_line_id": "1", "amount": "700000"}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	resp, _ := decode(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodePolicyViolation, resp.Error.Code)
	details, ok := resp.Error.Details.([]any)
	require.True(t, ok)
	require.NotEmpty(t, details)
	violation := details[0].(map[string]any)
	assert.Equal(t, "amount_exceeds_remaining", violation["code"])
	assert.Equal(t, "OC-1", violation["po_id"])
	assert.Equal(t, "500000", violation["available"])

	// nothing was stored
	list := s.do(t, http.MethodGet, "/api/v1/ap-match/links?invoice_id=F-900", nil)
	_, links := decodeList(t, list)
	assert.Empty(t, links)
}

func TestAPMatchHandler_Validation(t *testing.T) {
	s := newAPIServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"suggestions without invoice", http.MethodPost, "/api/v1/ap-match/suggestions", map[string]any{}},
		{"preview without links", http.MethodPost, "/api/v1/ap-match/preview", map[string]any{"invoice_id": "F-900", "links": []any{}}},
		{"confirm with zero amount", http.MethodPost, "/api/v1/ap-match/confirm", map[string]any{
			"invoice_id": "F-900",
			"links":      []any{map[string]any{"po_id": "OC-1", "amount": "0"}},
		}},
		{"links without invoice", http.MethodGet, "/api/v1/ap-match/links", nil},
		{"po lines without ids", http.MethodPut, "/api/v1/ap-match/po-lines", map[string]any{
			"lines": []any{map[string]any{"unit_price": "1", "qty_available": "1"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestAPMatchHandler_RecordFeedback(t *testing.T) {
	s := newAPIServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/ap-match/feedback", map[string]any{
		"subject_key": "F-900",
		"accepted":    true,
		"chosen":      map[string]any{"po_id": "OC-1"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	_, data := decode(t, w)
	assert.Equal(t, "ap_match", data["scope"])
	assert.Equal(t, true, data["accepted"])
}
