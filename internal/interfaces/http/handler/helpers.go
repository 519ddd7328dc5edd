package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"
)

// Date accepts "2006-01-02" or RFC 3339 and always encodes as a calendar day
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// UnmarshalJSON implements json.Unmarshaler
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("date %q must be YYYY-MM-DD or RFC 3339", s)
	}
	d.Time = t.UTC()
	return nil
}

// MarshalJSON implements json.Marshaler
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

var reasonLanguages = language.NewMatcher([]language.Tag{language.English, language.Spanish})

// displayLanguage picks English or Spanish from Accept-Language
func displayLanguage(c *gin.Context) language.Tag {
	tags, _, _ := language.ParseAcceptLanguage(c.GetHeader("Accept-Language"))
	_, idx, _ := reasonLanguages.Match(tags...)
	if idx == 1 {
		return language.Spanish
	}
	return language.English
}

// reasonTexts renders every distinct reason code in codes for the client's language
func reasonTexts(tag language.Tag, codes ...[]matching.ReasonCode) map[string]string {
	out := make(map[string]string)
	for _, list := range codes {
		for _, code := range list {
			if !code.IsValid() {
				continue
			}
			out[code.String()] = code.RenderFor(tag)
		}
	}
	return out
}

func parseKinds(values []string) ([]matching.RecordKind, error) {
	kinds := make([]matching.RecordKind, 0, len(values))
	for _, v := range values {
		k, err := matching.ParseRecordKind(v)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func parseRefs(keys []string) ([]matching.RecordRef, error) {
	refs := make([]matching.RecordRef, 0, len(keys))
	for _, key := range keys {
		ref, err := matching.ParseRecordRef(key)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
