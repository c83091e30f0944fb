package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

type CurrencyScale int32

const DefaultCurrencyScale CurrencyScale = 2

type Valuation struct {
	Total      decimal.Decimal            `json:"total"`
	ByCategory map[string]decimal.Decimal `json:"byCategory"`
}

// Value computes stock value at unit cost.
//
// Rules:
// - Category values are rounded to scale.
// - Any rounding delta against the rounded exact total is applied to the
//   largest category, so the categories always sum to Total.
func Value(items []Item, scale CurrencyScale) Valuation {
	if scale <= 0 {
		scale = DefaultCurrencyScale
	}
	exact := map[string]decimal.Decimal{}
	total := decimal.Zero
	for _, it := range items {
		v := it.Value()
		cat := it.Category
		if cat == "" {
			cat = string(it.Kind)
		}
		exact[cat] = exact[cat].Add(v)
		total = total.Add(v)
	}
	total = total.Round(int32(scale))

	out := Valuation{Total: total, ByCategory: make(map[string]decimal.Decimal, len(exact))}
	if len(exact) == 0 {
		return out
	}
	cats := make([]string, 0, len(exact))
	sum := decimal.Zero
	for cat, v := range exact {
		r := v.Round(int32(scale))
		out.ByCategory[cat] = r
		sum = sum.Add(r)
		cats = append(cats, cat)
	}
	if delta := total.Sub(sum); !delta.IsZero() {
		sort.Slice(cats, func(i, j int) bool {
			a, b := out.ByCategory[cats[i]], out.ByCategory[cats[j]]
			if !a.Equal(b) {
				return a.GreaterThan(b)
			}
			return cats[i] < cats[j]
		})
		out.ByCategory[cats[0]] = out.ByCategory[cats[0]].Add(delta)
	}
	return out
}
