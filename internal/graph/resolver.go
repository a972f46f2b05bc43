package graph

import (
	"context"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/datausa"
	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/stats"
)

// Gateway is the upstream used by the per-state summary fields.
type Gateway interface {
	Trade(ctx context.Context, stateID string) ([]datausa.TradeRecord, error)
	Employment(ctx context.Context, stateID string) ([]datausa.EmploymentRecord, error)
	Production(ctx context.Context, stateID string) ([]datausa.ProductionRecord, error)
}

// Resolver is the Query root.
type Resolver struct {
	catalog *stats.Catalog
	gw      Gateway
	logger  *zap.SugaredLogger
}

func NewResolver(catalog *stats.Catalog, gw Gateway, logger *zap.SugaredLogger) *Resolver {
	return &Resolver{catalog: catalog, gw: gw, logger: logger}
}

func (r *Resolver) States(ctx context.Context, args struct{ Name *string }) (*[]*StateResolver, error) {
	prefix := ""
	if args.Name != nil {
		prefix = *args.Name
	}
	states, err := r.catalog.States(ctx, prefix)
	if err != nil {
		r.logger.Warnw("states lookup failed", "err", err)
		return nil, err
	}
	out := make([]*StateResolver, len(states))
	for i := range states {
		out[i] = &StateResolver{state: states[i], gw: r.gw, logger: r.logger}
	}
	return &out, nil
}

func (r *Resolver) Viewer(ctx context.Context) *ViewerResolver {
	p, ok := session.PrincipalFrom(ctx)
	if !ok {
		return nil
	}
	return &ViewerResolver{p: p}
}

type ViewerResolver struct{ p *session.Principal }

func (v *ViewerResolver) ID() int32        { return int32(v.p.ID) }
func (v *ViewerResolver) Username() string { return v.p.Username }

// StateResolver resolves one State; each summary field makes its own upstream call.
type StateResolver struct {
	state  datausa.State
	gw     Gateway
	logger *zap.SugaredLogger
}

func (s *StateResolver) ID() string   { return s.state.ID }
func (s *StateResolver) Key() string  { return s.state.Key }
func (s *StateResolver) Name() string { return s.state.Name }
func (s *StateResolver) Slug() string { return s.state.Slug }

func (s *StateResolver) TradeSummary(ctx context.Context) (*TradeSummaryResolver, error) {
	records, err := s.gw.Trade(ctx, s.state.ID)
	if err != nil {
		s.logger.Warnw("trade summary failed", "state", s.state.ID, "err", err)
		return nil, err
	}
	sum := stats.SummarizeTrade(s.state.Name, records)
	return &TradeSummaryResolver{s: sum}, nil
}

func (s *StateResolver) EmploymentSummary(ctx context.Context) (*EmploymentSummaryResolver, error) {
	records, err := s.gw.Employment(ctx, s.state.ID)
	if err != nil {
		s.logger.Warnw("employment summary failed", "state", s.state.ID, "err", err)
		return nil, err
	}
	return &EmploymentSummaryResolver{s: stats.SummarizeEmployment(records)}, nil
}

func (s *StateResolver) ProductionSummary(ctx context.Context) (*ProductionSummaryResolver, error) {
	records, err := s.gw.Production(ctx, s.state.ID)
	if err != nil {
		s.logger.Warnw("production summary failed", "state", s.state.ID, "err", err)
		return nil, err
	}
	return &ProductionSummaryResolver{s: stats.SummarizeProduction(s.state.Name, records)}, nil
}

type TradeSummaryResolver struct{ s stats.TradeSummary }

func (t *TradeSummaryResolver) Name() string                       { return t.s.Name }
func (t *TradeSummaryResolver) TotalDollarAmount() float64         { return t.s.TotalDollarAmount }
func (t *TradeSummaryResolver) TotalTons() float64                 { return t.s.TotalTons }
func (t *TradeSummaryResolver) StatesByDollars() []*AmountResolver { return amounts(t.s.StatesByDollars) }
func (t *TradeSummaryResolver) StatesByTons() []*AmountResolver    { return amounts(t.s.StatesByTons) }

type ProductionSummaryResolver struct{ s stats.ProductionSummary }

func (p *ProductionSummaryResolver) Name() string               { return p.s.Name }
func (p *ProductionSummaryResolver) TotalDollarAmount() float64 { return p.s.TotalDollarAmount }
func (p *ProductionSummaryResolver) TotalTons() float64         { return p.s.TotalTons }
func (p *ProductionSummaryResolver) ProductionTypeByDollars() []*AmountResolver {
	return amounts(p.s.ProductionTypeByDollars)
}
func (p *ProductionSummaryResolver) ProductionTypeByTons() []*AmountResolver {
	return amounts(p.s.ProductionTypeByTons)
}

type EmploymentSummaryResolver struct{ s stats.EmploymentSummary }

func (e *EmploymentSummaryResolver) TopIndustryByEmployee() *IndustryByEmployeeResolver {
	if e.s.TopIndustryByEmployee == nil {
		return nil
	}
	return &IndustryByEmployeeResolver{v: *e.s.TopIndustryByEmployee}
}

func (e *EmploymentSummaryResolver) TopIndustryByAverageSalary() *IndustryByAverageSalaryResolver {
	if e.s.TopIndustryByAverageSalary == nil {
		return nil
	}
	return &IndustryByAverageSalaryResolver{v: *e.s.TopIndustryByAverageSalary}
}

type IndustryByEmployeeResolver struct{ v stats.IndustryByEmployee }

func (i *IndustryByEmployeeResolver) Industry() string       { return i.v.Industry }
func (i *IndustryByEmployeeResolver) EmployedCount() float64 { return i.v.EmployedCount }

type IndustryByAverageSalaryResolver struct{ v stats.IndustryByAverageSalary }

func (i *IndustryByAverageSalaryResolver) Industry() string       { return i.v.Industry }
func (i *IndustryByAverageSalaryResolver) AverageSalary() float64 { return i.v.AverageSalary }

type AmountResolver struct{ a stats.Amount }

func (a *AmountResolver) Name() string    { return a.a.Name }
func (a *AmountResolver) Amount() float64 { return a.a.Amount }

func amounts(in []stats.Amount) []*AmountResolver {
	out := make([]*AmountResolver, len(in))
	for i := range in {
		out[i] = &AmountResolver{a: in[i]}
	}
	return out
}
