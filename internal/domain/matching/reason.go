package matching

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ReasonCode explains why a suggestion was made. The set is closed.
type ReasonCode int

// Reason codes in scoring priority order. New codes go at the end of their group.
const (
	ReasonReferenceMatch ReasonCode = iota + 1
	ReasonReferencePartial
	ReasonCounterpartMatch
	ReasonAmountNarrow
	ReasonAmountWithinTolerance
	ReasonDateProximity
	ReasonHistoryFrequency
	ReasonCombinationSum
	ReasonSearchPartial
	ReasonPOReference
	ReasonFullCoverage
	ReasonPartialCoverage
)

var reasonWireCodes = map[ReasonCode]string{
	ReasonReferenceMatch:        "reference_match",
	ReasonReferencePartial:      "reference_partial",
	ReasonCounterpartMatch:      "counterpart_match",
	ReasonAmountNarrow:          "amount_narrow",
	ReasonAmountWithinTolerance: "amount_within_tolerance",
	ReasonDateProximity:         "date_proximity",
	ReasonHistoryFrequency:      "history_frequency",
	ReasonCombinationSum:        "combination_sum",
	ReasonSearchPartial:         "search_partial",
	ReasonPOReference:           "po_reference",
	ReasonFullCoverage:          "full_coverage",
	ReasonPartialCoverage:       "partial_coverage",
}

var reasonByWireCode = func() map[string]ReasonCode {
	m := make(map[string]ReasonCode, len(reasonWireCodes))
	for code, wire := range reasonWireCodes {
		m[wire] = code
	}
	return m
}()

// Display texts are registered as message catalog entries keyed by the English text
var reasonText = map[ReasonCode]struct{ en, es string }{
	ReasonReferenceMatch:        {"Reference matches exactly", "La referencia coincide exactamente"},
	ReasonReferencePartial:      {"Reference is similar", "La referencia es similar"},
	ReasonCounterpartMatch:      {"Same counterpart", "Misma contraparte"},
	ReasonAmountNarrow:          {"Amount matches within a tenth of a percent", "El monto coincide dentro de una décima de punto porcentual"},
	ReasonAmountWithinTolerance: {"Amount within tolerance", "Monto dentro de la tolerancia"},
	ReasonDateProximity:         {"Dates are close", "Fechas cercanas"},
	ReasonHistoryFrequency:      {"Counterpart reconciled before", "Contraparte conciliada anteriormente"},
	ReasonCombinationSum:        {"Documents add up to the amount", "Los documentos suman el monto"},
	ReasonSearchPartial:         {"Search stopped early", "La búsqueda se detuvo antes de terminar"},
	ReasonPOReference:           {"Invoice cites the purchase order", "La factura cita la orden de compra"},
	ReasonFullCoverage:          {"Purchase order covers the invoice", "La orden de compra cubre la factura"},
	ReasonPartialCoverage:       {"Purchase order partially covers the invoice", "La orden de compra cubre parcialmente la factura"},
}

func init() {
	for _, text := range reasonText {
		_ = message.SetString(language.English, text.en, text.en)
		_ = message.SetString(language.Spanish, text.en, text.es)
	}
}

// IsValid reports whether the code belongs to the closed set
func (r ReasonCode) IsValid() bool {
	_, ok := reasonWireCodes[r]
	return ok
}

// String returns the stable wire code
func (r ReasonCode) String() string {
	if s, ok := reasonWireCodes[r]; ok {
		return s
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// Render returns the English display text
func (r ReasonCode) Render() string {
	return r.RenderFor(language.English)
}

// RenderFor returns the display text in the given language, falling back to English
func (r ReasonCode) RenderFor(tag language.Tag) string {
	text, ok := reasonText[r]
	if !ok {
		return r.String()
	}
	return message.NewPrinter(tag).Sprintf(text.en)
}

// MarshalText encodes the wire code
func (r ReasonCode) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("invalid reason code %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText decodes a wire code
func (r *ReasonCode) UnmarshalText(text []byte) error {
	code, err := ParseReasonCode(string(text))
	if err != nil {
		return err
	}
	*r = code
	return nil
}

// ParseReasonCode parses a wire code
func ParseReasonCode(s string) (ReasonCode, error) {
	code, ok := reasonByWireCode[s]
	if !ok {
		return 0, fmt.Errorf("unknown reason code %q", s)
	}
	return code, nil
}

// ReasonStrings converts codes to wire codes
func ReasonStrings(codes []ReasonCode) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = c.String()
	}
	return out
}

// ParseReasonCodes parses wire codes, failing on the first unknown one
func ParseReasonCodes(values []string) ([]ReasonCode, error) {
	out := make([]ReasonCode, 0, len(values))
	for _, v := range values {
		code, err := ParseReasonCode(v)
		if err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, nil
}
