package matching

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestReasonCode_WireCodesRoundTrip(t *testing.T) {
	for code := range reasonWireCodes {
		parsed, err := ParseReasonCode(code.String())
		require.NoError(t, err)
		assert.Equal(t, code, parsed)
		assert.NotEmpty(t, code.Render())
	}
}

func TestReasonCode_RenderFor(t *testing.T) {
	assert.Equal(t, "Reference matches exactly", ReasonReferenceMatch.Render())
	assert.Equal(t, "La referencia coincide exactamente", ReasonReferenceMatch.RenderFor(language.Spanish))
	assert.Equal(t, "Dates are close", ReasonDateProximity.RenderFor(language.Japanese))
}

func TestReasonCode_JSON(t *testing.T) {
	data, err := json.Marshal([]ReasonCode{ReasonReferenceMatch, ReasonDateProximity})
	require.NoError(t, err)
	assert.JSONEq(t, `["reference_match","date_proximity"]`, string(data))

	var decoded []ReasonCode
	require.Error(t, json.Unmarshal([]byte(`["made_up"]`), &decoded))
	_, err = json.Marshal(ReasonCode(99))
	assert.Error(t, err)
}

func TestSuggestion_TaggedUnionJSON(t *testing.T) {
	set := &SuggestionSet{
		Source: RecordRef{Kind: KindBankMovement, ID: "bm"},
		Items: []Suggestion{
			&SingleSuggestion{Source: RecordRef{Kind: KindBankMovement, ID: "bm"}, Target: invoice("a", 10, "2024-09-10"), Score: 0.9, ReasonCodes: []ReasonCode{ReasonAmountNarrow}},
			&CombinationSuggestion{Source: RecordRef{Kind: KindBankMovement, ID: "bm"}, Members: []CandidateTarget{invoice("b", 4, "2024-09-10"), invoice("c", 6, "2024-09-10")}, Score: 0.7, ReasonCodes: []ReasonCode{ReasonCombinationSum}},
		},
		Partial: true,
	}

	data, err := json.Marshal(set)
	require.NoError(t, err)

	var decoded SuggestionSet
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded.Items, 2)
	assert.Equal(t, SuggestionSingle, decoded.Items[0].Kind())
	assert.Equal(t, SuggestionCombination, decoded.Items[1].Kind())
	assert.Len(t, decoded.Items[1].Targets(), 2)
	assert.True(t, decoded.Partial)
	assert.ErrorIs(t, decoded.Warning(), ErrSearchBudgetExhausted)

	_, err = DecodeSuggestion([]byte(`{"kind":"triple"}`))
	assert.Error(t, err)
}
