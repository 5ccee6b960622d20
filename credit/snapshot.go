package credit

import (
	"context"
	"sort"
	"time"
)

// Snapshot is a point-in-time read of every entity the engines consume.
type Snapshot struct {
	TakenAt       time.Time
	Customers     []Customer
	Contracts     []Contract
	Payments      []Payment
	Defaults      []DefaultEvent
	Indicators    []EconomicIndicator
	Limits        []RiskLimit
	RatingChanges []RatingChange
	Provisions    []Provision
}

// SnapshotSource supplies one consistent snapshot per call.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// Position is a contract joined with its owning customer.
type Position struct {
	Contract Contract
	Customer Customer
}

// Balance is the outstanding balance, 0 when unknown.
func (p Position) Balance() float64 {
	b, _ := p.Contract.Balance()
	return b
}

// Portfolio is the joined view every engine computes from. Positions keep the
// snapshot's contract order sorted by contract id.
type Portfolio struct {
	Positions     []Position
	Customers     map[int64]Customer
	Payments      map[int64][]Payment
	OpenDefault   map[int64]bool
	Provisions    map[int64][]Provision // per contract, ascending AsOf
	RatingChanges []RatingChange
	Limits        []RiskLimit
	Indicators    []EconomicIndicator
	Warnings      []IntegrityWarning
}

// Join resolves foreign keys. Records with dangling references, unknown grades
// or negative amounts are dropped and reported as warnings; the rest is kept.
func Join(s *Snapshot) *Portfolio {
	p := &Portfolio{
		Customers:   make(map[int64]Customer, len(s.Customers)),
		Payments:    make(map[int64][]Payment),
		OpenDefault: make(map[int64]bool),
		Provisions:  make(map[int64][]Provision),
		Limits:      s.Limits,
		Indicators:  s.Indicators,
	}

	for _, c := range s.Customers {
		if !c.Rating.Valid() {
			p.warn("customer", c.ID, 0, "unknown rating grade "+string(c.Rating))
			continue
		}
		p.Customers[c.ID] = c
	}

	contracts := make([]Contract, len(s.Contracts))
	copy(contracts, s.Contracts)
	sort.SliceStable(contracts, func(i, j int) bool { return contracts[i].ID < contracts[j].ID })

	known := make(map[int64]bool, len(contracts))
	for _, c := range contracts {
		cust, ok := p.Customers[c.CustomerID]
		if !ok {
			p.warn("contract", c.ID, c.CustomerID, "customer not found")
			continue
		}
		if b, ok := c.Balance(); ok && b < 0 {
			p.warn("contract", c.ID, c.CustomerID, "negative outstanding balance")
			continue
		}
		known[c.ID] = true
		p.Positions = append(p.Positions, Position{Contract: c, Customer: cust})
	}

	for _, pay := range s.Payments {
		if !known[pay.ContractID] {
			p.warn("payment", pay.ID, pay.ContractID, "contract not found")
			continue
		}
		p.Payments[pay.ContractID] = append(p.Payments[pay.ContractID], pay)
	}

	for _, e := range s.Defaults {
		if !known[e.ContractID] {
			p.warn("default_event", e.ID, e.ContractID, "contract not found")
			continue
		}
		if e.Open() {
			p.OpenDefault[e.ContractID] = true
		}
	}

	for _, pr := range s.Provisions {
		if !known[pr.ContractID] {
			continue
		}
		p.Provisions[pr.ContractID] = append(p.Provisions[pr.ContractID], pr)
	}
	for id := range p.Provisions {
		list := p.Provisions[id]
		sort.SliceStable(list, func(i, j int) bool { return list[i].AsOf.Before(list[j].AsOf) })
	}

	for _, rc := range s.RatingChanges {
		if _, ok := p.Customers[rc.CustomerID]; !ok {
			p.warn("rating_change", 0, rc.CustomerID, "customer not found")
			continue
		}
		p.RatingChanges = append(p.RatingChanges, rc)
	}

	return p
}

func (p *Portfolio) warn(entity string, id, ref int64, msg string) {
	p.Warnings = append(p.Warnings, IntegrityWarning{Entity: entity, ID: id, Ref: ref, Msg: msg})
}

// LatestProvision returns the most recent provision dated on or before asOf.
func (p *Portfolio) LatestProvision(contractID int64, asOf time.Time) (Provision, bool) {
	return p.PriorProvision(contractID, asOf.AddDate(0, 0, 1))
}

// PriorProvision returns the latest provision strictly before asOf.
func (p *Portfolio) PriorProvision(contractID int64, asOf time.Time) (Provision, bool) {
	list := p.Provisions[contractID]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].AsOf.Before(asOf) {
			return list[i], true
		}
	}
	return Provision{}, false
}

// MaxDaysPastDue is the largest days-late over payments still open on asOf, 0 if none.
func (p *Portfolio) MaxDaysPastDue(contractID int64, asOf time.Time) int {
	dpd := 0
	for _, pay := range p.Payments[contractID] {
		if !pay.OpenAt(asOf) {
			continue
		}
		if d := pay.DaysLateAt(asOf); d > dpd {
			dpd = d
		}
	}
	return dpd
}

// Active returns positions whose contract status is active.
func (p *Portfolio) Active() []Position {
	var out []Position
	for _, pos := range p.Positions {
		if pos.Contract.Status == StatusActive {
			out = append(out, pos)
		}
	}
	return out
}
