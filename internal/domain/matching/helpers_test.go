package matching

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var testTenant = uuid.MustParse("00000000-0000-0000-0000-000000000001")

type fakeTargetProvider struct {
	targets []CandidateTarget
	queries []TargetQuery
	err     error
}

func (f *fakeTargetProvider) FindTargets(_ context.Context, _ uuid.UUID, q TargetQuery) ([]CandidateTarget, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return f.targets, nil
}

type fakeHistory map[string]int

func (f fakeHistory) CounterpartLinkCounts(_ context.Context, _ uuid.UUID, ids []string) (map[string]int, error) {
	out := make(map[string]int, len(ids))
	for _, id := range ids {
		if n, ok := f[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func amount(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func invoice(id string, v int64, date string) CandidateTarget {
	return CandidateTarget{Kind: KindPurchaseInvoice, ID: id, Amount: amount(v), Date: day(date), Currency: "CLP"}
}

func bankMovement(id string, v int64, date string) SourceRecord {
	return SourceRecord{Kind: KindBankMovement, ID: id, Amount: amount(v), Date: day(date), Currency: "CLP"}
}
