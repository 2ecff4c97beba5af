// Package waterfall distributes period collections through prioritised
// payment steps gated by covenant triggers.
package waterfall

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/meenmo/cfengine/apperrors"
	"github.com/meenmo/cfengine/cashflow"
	"github.com/meenmo/cfengine/logging"
)

// RatioFunc computes a trigger ratio. ok=false means its inputs are missing.
type RatioFunc func(c Collections) (value float64, ok bool)

var neutralRatio = map[TriggerType]float64{
	OC:             100,
	IC:             100,
	Delinquency:    0,
	CumulativeLoss: 0,
}

var substitutionModifiedProRata = apperrors.Substitution{
	Feature:    "ModifiedProRata payment",
	Substitute: "ProRata",
}

// Engine owns the accounts and triggers of one simulation run. It is not
// safe for concurrent use.
type Engine struct {
	accounts []*Account
	triggers []*Trigger
	byName   map[string]*Trigger
	payments []Payment
	ratios   map[TriggerType]RatioFunc
	logger   *zap.Logger
	warned   map[apperrors.Substitution]bool

	notes     map[string]bool
	notesPaid float64
}

// Option customises an Engine.
type Option func(*Engine)

// WithRatio replaces the ratio computation for a trigger type.
func WithRatio(t TriggerType, fn RatioFunc) Option {
	return func(e *Engine) { e.ratios[t] = fn }
}

// WithLogger sets the logger used for substitution warnings.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New validates cfg and copies it into run-scoped state.
func New(cfg Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		byName: make(map[string]*Trigger, len(cfg.Triggers)),
		ratios: map[TriggerType]RatioFunc{
			OC:             ocRatio,
			IC:             icRatio,
			Delinquency:    delinquencyRatio,
			CumulativeLoss: cumulativeLossRatio,
		},
		warned: make(map[apperrors.Substitution]bool),
		notes:  make(map[string]bool, len(cfg.NoteRecipients)),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrNop(e.logger)

	names := make(map[string]bool, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		if a.Name == "" || names[a.Name] {
			return nil, apperrors.Invalid("waterfall.New", "account name %q is empty or duplicated", a.Name)
		}
		names[a.Name] = true
		switch a.Type {
		case PrincipalAccount, InterestAccount, ReserveAccount, FeesAccount:
		default:
			return nil, apperrors.Invalid("waterfall.New", "account %q has unknown type %q", a.Name, a.Type)
		}
		if a.Balance < 0 {
			return nil, apperrors.Invalid("waterfall.New", "account %q has negative balance", a.Name)
		}
		acc := a
		e.accounts = append(e.accounts, &acc)
	}

	for _, t := range cfg.Triggers {
		if t.Name == "" || e.byName[t.Name] != nil {
			return nil, apperrors.Invalid("waterfall.New", "trigger name %q is empty or duplicated", t.Name)
		}
		if !t.Operator.valid() {
			return nil, apperrors.Invalid("waterfall.New", "trigger %q has unknown operator %q", t.Name, t.Operator)
		}
		if e.ratios[t.Type] == nil {
			return nil, apperrors.Invalid("waterfall.New", "trigger %q has unknown type %q", t.Name, t.Type)
		}
		trig := t
		e.triggers = append(e.triggers, &trig)
		e.byName[t.Name] = &trig
	}

	for i, p := range cfg.Payments {
		switch p.Type {
		case Sequential, ProRata, ModifiedProRata:
		default:
			return nil, apperrors.Invalid("waterfall.New", "payment %d has unknown type %q", i, p.Type)
		}
		if len(p.Recipients) == 0 {
			return nil, apperrors.Invalid("waterfall.New", "payment %d has no recipients", i)
		}
		for _, g := range p.Gates {
			if e.byName[g] == nil {
				return nil, apperrors.Invalid("waterfall.New", "payment %d is gated on unknown trigger %q", i, g)
			}
		}
		e.payments = append(e.payments, p)
	}
	for _, n := range cfg.NoteRecipients {
		if n == "" {
			return nil, apperrors.Invalid("waterfall.New", "note recipient name is empty")
		}
		e.notes[n] = true
	}
	sort.SliceStable(e.payments, func(i, j int) bool {
		return e.payments[i].Priority < e.payments[j].Priority
	})
	return e, nil
}

// Accounts returns a snapshot of the current account balances.
func (e *Engine) Accounts() []Account {
	out := make([]Account, len(e.accounts))
	for i, a := range e.accounts {
		out[i] = *a
	}
	return out
}

// Triggers returns a snapshot of the latest trigger evaluation.
func (e *Engine) Triggers() []Trigger {
	out := make([]Trigger, len(e.triggers))
	for i, t := range e.triggers {
		out[i] = *t
	}
	return out
}

// Run processes a whole schedule in order.
func (e *Engine) Run(periods []Collections) []PeriodResult {
	out := make([]PeriodResult, 0, len(periods))
	for _, c := range periods {
		out = append(out, e.ProcessPeriod(c))
	}
	return out
}

// ProcessPeriod credits collections, re-evaluates triggers and runs every
// payment step in priority order. With note recipients configured, the
// given note balance is reduced by everything paid to them so far.
func (e *Engine) ProcessPeriod(c Collections) PeriodResult {
	tracked := len(e.notes) > 0 && c.State.NoteBalance > 0
	paidBefore := e.notesPaid
	if tracked {
		c.State.NoteBalance = math.Max(0, c.State.NoteBalance-e.notesPaid)
	}

	res := PeriodResult{
		Period:        c.Period,
		Payments:      make(map[string]float64),
		TriggerValues: make(map[string]float64, len(e.triggers)),
	}

	if a := e.firstOfType(PrincipalAccount); a != nil {
		res.Overflow += e.credit(a, c.Principal+c.Prepayment+c.Recovery)
	}
	if a := e.firstOfType(InterestAccount); a != nil {
		res.Overflow += e.credit(a, c.Interest)
	}

	for _, t := range e.triggers {
		v, ok := e.ratios[t.Type](c)
		if !ok {
			v = neutralRatio[t.Type]
			e.substitute(&res, apperrors.Substitution{
				Feature:    string(t.Type) + " ratio without collateral state",
				Substitute: "neutral value",
			})
		}
		t.Value = v
		t.Active = t.Operator.compare(v, t.Threshold)
		res.TriggerValues[t.Name] = v
		if t.Active {
			res.ActiveTriggers = append(res.ActiveTriggers, t.Name)
		}
	}

	for _, p := range e.payments {
		if !e.gatesOpen(p) {
			continue
		}
		switch p.Type {
		case Sequential:
			e.paySequential(&res, p)
		case ModifiedProRata:
			e.substitute(&res, substitutionModifiedProRata)
			e.payProRata(&res, p)
		default:
			e.payProRata(&res, p)
		}
	}

	for name, amount := range res.Payments {
		if e.notes[name] {
			e.notesPaid += amount
		}
	}
	if tracked {
		res.NoteBalance = math.Max(0, c.State.NoteBalance-(e.notesPaid-paidBefore))
	}
	return res
}

func (e *Engine) substitute(res *PeriodResult, s apperrors.Substitution) {
	res.Substitutions = apperrors.AppendUnique(res.Substitutions, s)
	if !e.warned[s] {
		e.warned[s] = true
		e.logger.Warn("substituting unsupported feature",
			zap.String("feature", s.Feature), zap.String("substitute", s.Substitute))
	}
}

func (e *Engine) firstOfType(t AccountType) *Account {
	for _, a := range e.accounts {
		if a.Type == t {
			return a
		}
	}
	return nil
}

// credit adds amount to a, keeping it under its maximum. It returns the overflow.
func (e *Engine) credit(a *Account, amount float64) float64 {
	a.Balance += amount
	if a.MaximumBalance != nil && a.Balance > *a.MaximumBalance {
		over := a.Balance - *a.MaximumBalance
		a.Balance = *a.MaximumBalance
		return over
	}
	return 0
}

func (e *Engine) gatesOpen(p Payment) bool {
	for _, g := range p.Gates {
		if !e.byName[g].Active {
			return false
		}
	}
	return true
}

func (e *Engine) availableFunds() float64 {
	total := 0.0
	for _, a := range e.accounts {
		total += a.Balance
	}
	return total
}

func clampAmount(p Payment, recipient string, amount float64) float64 {
	if limit, ok := p.Caps[recipient]; ok {
		amount = math.Min(amount, limit)
	}
	if floor, ok := p.Floors[recipient]; ok {
		amount = math.Max(amount, floor)
	}
	return amount
}

func (e *Engine) paySequential(res *PeriodResult, p Payment) {
	remaining := e.availableFunds()
	for _, r := range p.Recipients {
		if remaining <= 0 {
			break
		}
		amount := math.Min(clampAmount(p, r, remaining), remaining)
		if amount > 0 {
			e.pay(res, r, amount)
			remaining -= amount
		}
	}
}

// payProRata splits the funds evenly and clamps each share; clamped-off
// amounts are not redistributed.
func (e *Engine) payProRata(res *PeriodResult, p Payment) {
	remaining := e.availableFunds()
	share := remaining / float64(len(p.Recipients))
	for _, r := range p.Recipients {
		amount := math.Min(clampAmount(p, r, share), remaining)
		if amount > 0 {
			e.pay(res, r, amount)
			remaining -= amount
		}
	}
}

// pay records the gross amount and draws it from the Principal account, then
// the Interest account, never below their minimum balances.
func (e *Engine) pay(res *PeriodResult, recipient string, amount float64) {
	res.Payments[recipient] += amount
	owed := amount
	for _, t := range []AccountType{PrincipalAccount, InterestAccount} {
		a := e.firstOfType(t)
		if a == nil || owed <= 0 {
			continue
		}
		floor := 0.0
		if a.MinimumBalance != nil {
			floor = math.Max(0, *a.MinimumBalance)
		}
		draw := math.Min(owed, math.Max(0, a.Balance-floor))
		a.Balance -= draw
		owed -= draw
	}
	if owed > 0 {
		res.Unfunded += owed
	}
}

func ocRatio(c Collections) (float64, bool) {
	if c.State.NoteBalance <= 0 {
		return 0, false
	}
	return c.State.CollateralBalance / c.State.NoteBalance * 100, true
}

func icRatio(c Collections) (float64, bool) {
	if c.State.InterestDue <= 0 {
		return 0, false
	}
	return c.Interest / c.State.InterestDue * 100, true
}

func delinquencyRatio(c Collections) (float64, bool) {
	if c.State.CollateralBalance <= 0 {
		return 0, false
	}
	return c.State.DelinquentBalance / c.State.CollateralBalance * 100, true
}

func cumulativeLossRatio(c Collections) (float64, bool) {
	if c.State.OriginalBalance <= 0 {
		return 0, false
	}
	return c.State.CumulativeLoss / c.State.OriginalBalance * 100, true
}

// CollectionsFromCashflows maps a projected schedule onto waterfall inputs.
// noteBalance is the original note balance in every period; the engine pays
// it down when note recipients are configured. Pass 0 when unknown.
func CollectionsFromCashflows(res cashflow.Result, noteBalance float64) []Collections {
	out := make([]Collections, 0, len(res.Periods))
	original := 0.0
	if len(res.Periods) > 0 {
		original = res.Periods[0].BeginningBalance
	}
	for _, p := range res.Periods {
		out = append(out, Collections{
			Period:     p.Period,
			Principal:  p.ScheduledPrincipal,
			Interest:   p.NetInterest,
			Prepayment: p.Prepayment,
			Recovery:   p.Recoveries,
			State: CollateralState{
				CollateralBalance: p.EndingBalance,
				NoteBalance:       noteBalance,
				InterestDue:       p.ScheduledInterest,
				CumulativeLoss:    p.CumulativeLoss,
				OriginalBalance:   original,
			},
		})
	}
	return out
}
