// Package stats turns raw datausa records into the summaries served over GraphQL.
package stats

import (
	"sort"

	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/datausa"
)

// Amount is one named quantity, a destination state or a production type.
type Amount struct {
	Name   string
	Amount float64
}

type TradeSummary struct {
	Name              string
	TotalDollarAmount float64
	TotalTons         float64
	StatesByDollars   []Amount
	StatesByTons      []Amount
}

type ProductionSummary struct {
	Name                    string
	TotalDollarAmount       float64
	TotalTons               float64
	ProductionTypeByDollars []Amount
	ProductionTypeByTons    []Amount
}

type IndustryByEmployee struct {
	Industry      string
	EmployedCount float64
}

type IndustryByAverageSalary struct {
	Industry      string
	AverageSalary float64
}

// EmploymentSummary leaves both tops nil when the state has no industry records.
type EmploymentSummary struct {
	TopIndustryByEmployee      *IndustryByEmployee
	TopIndustryByAverageSalary *IndustryByAverageSalary
}

// SummarizeTrade totals the flows and lists destinations ascending by amount.
// Equal amounts keep upstream order.
func SummarizeTrade(name string, records []datausa.TradeRecord) TradeSummary {
	s := TradeSummary{
		Name:            name,
		StatesByDollars: make([]Amount, 0, len(records)),
		StatesByTons:    make([]Amount, 0, len(records)),
	}
	for _, r := range records {
		s.TotalDollarAmount += r.MillionsOfDollars
		s.TotalTons += r.ThousandsOfTons
		s.StatesByDollars = append(s.StatesByDollars, Amount{Name: r.DestinationState, Amount: r.MillionsOfDollars})
		s.StatesByTons = append(s.StatesByTons, Amount{Name: r.DestinationState, Amount: r.ThousandsOfTons})
	}
	sortAscending(s.StatesByDollars)
	sortAscending(s.StatesByTons)
	return s
}

// SummarizeProduction totals the flows per production type. Unlike trade,
// the per-type lists stay in upstream order.
func SummarizeProduction(name string, records []datausa.ProductionRecord) ProductionSummary {
	s := ProductionSummary{
		Name:                    name,
		ProductionTypeByDollars: make([]Amount, 0, len(records)),
		ProductionTypeByTons:    make([]Amount, 0, len(records)),
	}
	for _, r := range records {
		s.TotalDollarAmount += r.MillionsOfDollars
		s.TotalTons += r.ThousandsOfTons
		s.ProductionTypeByDollars = append(s.ProductionTypeByDollars, Amount{Name: r.SCTG2, Amount: r.MillionsOfDollars})
		s.ProductionTypeByTons = append(s.ProductionTypeByTons, Amount{Name: r.SCTG2, Amount: r.ThousandsOfTons})
	}
	return s
}

// SummarizeEmployment picks the industry with the most employees and the one
// with the highest average wage. Ties go to the first record.
func SummarizeEmployment(records []datausa.EmploymentRecord) EmploymentSummary {
	var s EmploymentSummary
	byEmployee := maxBy(records, func(r datausa.EmploymentRecord) float64 { return r.TotalPopulation })
	if byEmployee != nil {
		s.TopIndustryByEmployee = &IndustryByEmployee{
			Industry:      byEmployee.IndustryGroup,
			EmployedCount: byEmployee.TotalPopulation,
		}
	}
	bySalary := maxBy(records, func(r datausa.EmploymentRecord) float64 { return r.AverageWage })
	if bySalary != nil {
		s.TopIndustryByAverageSalary = &IndustryByAverageSalary{
			Industry:      bySalary.IndustryGroup,
			AverageSalary: bySalary.AverageWage,
		}
	}
	return s
}

func maxBy[T any](items []T, key func(T) float64) *T {
	var best *T
	var bestKey float64
	for i := range items {
		k := key(items[i])
		if best == nil || k > bestKey {
			best = &items[i]
			bestKey = k
		}
	}
	return best
}

func sortAscending(a []Amount) {
	sort.SliceStable(a, func(i, j int) bool { return a[i].Amount < a[j].Amount })
}
