package handler

import (
	"net/http"
	"testing"

	"github.com/erp/reconciliation/internal/interfaces/http/dto"
	"github.com/erp/reconciliation/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bankSource(id string, amount int64, date, ref string) map[string]any {
	return map[string]any{
		"kind":      "bank_movement",
		"id":        id,
		"amount":    amount,
		"date":      date,
		"currency":  "CLP",
		"reference": ref,
	}
}

func TestReconciliationHandler_GetSuggestions(t *testing.T) {
	s := newAPIServer(t)
	s.seedDocuments(t,
		document("purchase_invoice", "10234", 1_250_000, "2024-03-15", "FACT 10234", "76.123.456-7"),
		document("purchase_invoice", "20001", 90_000, "2024-03-14", "FACT 20001", "77.000.111-2"),
	)

	w := s.do(t, http.MethodPost, "/api/v1/reconciliation/suggestions", map[string]any{
		"source": bankSource("mov-1", -1_250_000, "2024-03-18", "TRANSF FACT 10234"),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp, data := decode(t, w)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Meta)
	assert.Equal(t, false, data["partial"])
	assert.NotContains(t, data, "warning")

	items, ok := data["items"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, items)
	first := items[0].(map[string]any)
	assert.Equal(t, "single", first["kind"])
	targets := first["targets"].([]any)
	require.Len(t, targets, 1)
	assert.Equal(t, "10234", targets[0].(map[string]any)["id"])

	tolerance, ok := data["tolerance"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 15, tolerance["date_window_days"])
}

func TestReconciliationHandler_GetSuggestions_ReasonTextsFollowAcceptLanguage(t *testing.T) {
	s := newAPIServer(t)
	s.seedDocuments(t, document("purchase_invoice", "10234", 1_250_000, "2024-03-15", "FACT 10234", "76.123.456-7"))
	body := map[string]any{"source": bankSource("mov-1", -1_250_000, "2024-03-18", "TRANSF FACT 10234")}

	_, en := decode(t, s.do(t, http.MethodPost, "/api/v1/reconciliation/suggestions", body, "Accept-Language", "en-US"))
	_, es := decode(t, s.do(t, http.MethodPost, "/api/v1/reconciliation/suggestions", body, "Accept-Language", "es-CL,es;q=0.9"))

	enTexts, ok := en["reason_texts"].(map[string]any)
	require.True(t, ok)
	esTexts, ok := es["reason_texts"].(map[string]any)
	require.True(t, ok)
	require.NotEmpty(t, enTexts)
	for code, text := range enTexts {
		assert.NotEmpty(t, text)
		assert.NotEqual(t, text, esTexts[code], "reason %s is not localized", code)
	}
}

func TestReconciliationHandler_GetSuggestions_Validation(t *testing.T) {
	s := newAPIServer(t)

	tests := []struct {
		name string
		body any
		code string
	}{
		{
			name: "malformed json",
			body: `{"source":`,
			code: dto.ErrCodeInvalidJSON,
		},
		{
			name: "unknown source kind",
			body: map[string]any{"source": map[string]any{"kind": "credit_note", "id": "1", "amount": 10}},
			code: dto.ErrCodeValidation,
		},
		{
			name: "unknown target kind",
			body: map[string]any{
				"source":       bankSource("mov-1", 10, "2024-03-18", ""),
				"target_kinds": []string{"purchase_invoice", "voucher"},
			},
			code: dto.ErrCodeValidation,
		},
		{
			name: "negative window",
			body: map[string]any{
				"source":           bankSource("mov-1", 10, "2024-03-18", ""),
				"date_window_days": -1,
			},
			code: dto.ErrCodeValidation,
		},
		{
			name: "bad date",
			body: map[string]any{"source": bankSource("mov-1", 10, "18/03/2024", "")},
			code: dto.ErrCodeValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/v1/reconciliation/suggestions", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp, _ := decode(t, w)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.RequestID)
		})
	}
}

func TestReconciliationHandler_GetBatchSuggestions(t *testing.T) {
	s := newAPIServer(t)
	s.seedDocuments(t,
		document("purchase_invoice", "10234", 1_250_000, "2024-03-15", "FACT 10234", "76.123.456-7"),
		document("sales_invoice", "B-77", 480_000, "2024-03-10", "BOLETA 77", "12.345.678-9"),
	)

	w := s.do(t, http.MethodPost, "/api/v1/reconciliation/suggestions/batch", map[string]any{
		"items": []any{
			map[string]any{"source": bankSource("mov-1", -1_250_000, "2024-03-18", "FACT 10234")},
			map[string]any{"source": bankSource("mov-2", 480_000, "2024-03-12", "BOLETA 77")},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	_, data := decode(t, w)
	items := data["items"].([]any)
	require.Len(t, items, 2)
	for i, raw := range items {
		item := raw.(map[string]any)
		assert.EqualValues(t, i, item["index"])
		assert.NotContains(t, item, "error")
		result := item["result"].(map[string]any)
		assert.NotEmpty(t, result["items"])
	}
}

func TestReconciliationHandler_GetBatchSuggestions_RejectsEmptyBatch(t *testing.T) {
	s := newAPIServer(t)
	w := s.do(t, http.MethodPost, "/api/v1/reconciliation/suggestions/batch", map[string]any{"items": []any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReconciliationHandler_ConfirmLink(t *testing.T) {
	s := newAPIServer(t)
	s.seedDocuments(t,
		document("bank_movement", "mov-1", -1_250_000, "2024-03-18", "TRANSF FACT 10234", ""),
		document("purchase_invoice", "10234", 1_250_000, "2024-03-15", "FACT 10234", "76.123.456-7"),
		document("purchase_invoice", "10235", 1_250_000, "2024-03-16", "FACT 10235", "76.123.456-7"),
	)
	body := map[string]any{
		"source":     "bank_movement:mov-1",
		"targets":    []string{"purchase_invoice:10234"},
		"confidence": 0.92,
		"reasons":    []string{"reference_match"},
	}

	w := s.do(t, http.MethodPost, "/api/v1/reconciliation/links", body, middleware.ActorHeaderKey, "ana@obra.cl")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	_, data := decode(t, w)
	assert.Equal(t, true, data["created"])
	link := data["link"].(map[string]any)
	linkID := link["id"].(string)
	assert.Equal(t, "bank_movement:mov-1", link["source"])
	assert.Equal(t, "active", link["status"])
	assert.Equal(t, "ana@obra.cl", link["confirmed_by"])
	assert.Equal(t, testTenant, link["tenant_id"])
	assert.NotEmpty(t, link["idempotency_key"])

	t.Run("repeat is idempotent", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/reconciliation/links", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		_, data := decode(t, w)
		assert.Equal(t, false, data["created"])
		assert.Equal(t, linkID, data["link"].(map[string]any)["id"])
	})

	t.Run("different targets for a linked source conflict", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/reconciliation/links", map[string]any{
			"source":  "bank_movement:mov-1",
			"targets": []string{"purchase_invoice:10235"},
		})
		assert.Equal(t, http.StatusConflict, w.Code)
		resp, _ := decode(t, w)
		assert.Equal(t, dto.ErrCodeConflict, resp.Error.Code)
	})

	t.Run("listed by source", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/reconciliation/links?source_key=bank_movement:mov-1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		_, list := decodeList(t, w)
		require.Len(t, list, 1)
		assert.Equal(t, linkID, list[0].(map[string]any)["id"])
	})

	t.Run("void then relink", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/reconciliation/links/"+linkID+"/void",
			map[string]any{"reason": "bank reversed the transfer"}, middleware.ActorHeaderKey, "jefe@obra.cl")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		_, voided := decode(t, w)
		assert.Equal(t, "voided", voided["status"])
		assert.Equal(t, "jefe@obra.cl", voided["voided_by"])
		assert.Equal(t, "bank reversed the transfer", voided["void_reason"])

		again := s.do(t, http.MethodPost, "/api/v1/reconciliation/links/"+linkID+"/void", map[string]any{"reason": "twice"})
		assert.Equal(t, http.StatusConflict, again.Code)

		relink := s.do(t, http.MethodPost, "/api/v1/reconciliation/links", map[string]any{
			"source":  "bank_movement:mov-1",
			"targets": []string{"purchase_invoice:10235"},
		})
		assert.Equal(t, http.StatusCreated, relink.Code, relink.Body.String())
	})
}

func TestReconciliationHandler_ConfirmLink_Errors(t *testing.T) {
	s := newAPIServer(t)
	s.seedDocuments(t,
		document("bank_movement", "mov-1", -1_250_000, "2024-03-18", "", ""),
		document("purchase_invoice", "small", 1_000_000, "2024-03-15", "", "76.123.456-7"),
	)

	t.Run("outside tolerance is a policy violation", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/reconciliation/links", map[string]any{
			"source":  "bank_movement:mov-1",
			"targets": []string{"purchase_invoice:small"},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		resp, _ := decode(t, w)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodePolicyViolation, resp.Error.Code)
		details, ok := resp.Error.Details.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "bank_movement:mov-1", details["source_key"])
		assert.Equal(t, "1000000", details["targets_total"])
	})

	t.Run("unknown target", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/reconciliation/links", map[string]any{
			"source":  "bank_movement:mov-1",
			"targets": []string{"purchase_invoice:missing"},
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed reference", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/reconciliation/links", map[string]any{
			"source":  "mov-1",
			"targets": []string{"purchase_invoice:small"},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown reason code", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/reconciliation/links", map[string]any{
			"source":  "bank_movement:mov-1",
			"targets": []string{"purchase_invoice:small"},
			"reasons": []string{"gut_feeling"},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("void needs a uuid", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/reconciliation/links/42/void", map[string]any{"reason": "x"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("list needs a source key", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/reconciliation/links", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestReconciliationHandler_Feedback(t *testing.T) {
	s := newAPIServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/reconciliation/feedback", map[string]any{
		"subject_key": "bank_movement:mov-1",
		"accepted":    false,
		"reason":      "wrong supplier",
		"candidates":  []any{map[string]any{"target": "purchase_invoice:10234", "confidence": 0.81}},
	}, middleware.ActorHeaderKey, "ana@obra.cl")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	_, data := decode(t, w)
	assert.Equal(t, "reconciliation", data["scope"])
	assert.Equal(t, "ana@obra.cl", data["recorded_by"])
	assert.Equal(t, false, data["accepted"])

	w = s.do(t, http.MethodPost, "/api/v1/reconciliation/feedback/export", map[string]any{
		"scope": "reconciliation",
		"from":  "2024-03-01T00:00:00Z",
		"to":    "2024-04-01T00:00:00Z",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	_, export := decode(t, w)
	assert.EqualValues(t, 1, export["events"])
	key := export["key"].(string)
	body, contentType, ok := s.archive.Object(key)
	require.True(t, ok)
	assert.Contains(t, string(body), `"subject_key":"bank_movement:mov-1"`)
	assert.Contains(t, contentType, "ndjson")

	t.Run("export needs a known scope", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/reconciliation/feedback/export", map[string]any{
			"scope": "everything",
			"from":  "2024-03-01T00:00:00Z",
			"to":    "2024-04-01T00:00:00Z",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestReconciliationHandler_UpsertDocuments(t *testing.T) {
	s := newAPIServer(t)

	w := s.do(t, http.MethodPut, "/api/v1/reconciliation/documents", map[string]any{
		"documents": []any{
			document("purchase_invoice", "1", 100, "2024-03-01", "", ""),
			document("expense", "2", 200, "2024-03-02", "", ""),
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	_, data := decode(t, w)
	assert.EqualValues(t, 2, data["count"])

	w = s.do(t, http.MethodPut, "/api/v1/reconciliation/documents", map[string]any{"documents": []any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
