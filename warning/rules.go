package warning

import (
	"fmt"
	"sort"
	"time"

	"github.com/rustyeddy/creditrisk/concentration"
	"github.com/rustyeddy/creditrisk/config"
	"github.com/rustyeddy/creditrisk/credit"
	"gonum.org/v1/gonum/stat"
)

// scan carries one evaluation. The three core signal sets feed compoundRisk.
type scan struct {
	cfg   *config.Config
	p     *credit.Portfolio
	asOf  time.Time
	stamp string

	delayed    map[int64]bool // contract ids
	highUtil   map[int64]bool // contract ids
	downgraded map[int64]bool // customer ids

	alerts []Alert
}

func (s *scan) add(a Alert) {
	a.ID = fmt.Sprintf("%s-%s-%s", a.Signal, a.Entity, s.stamp)
	s.alerts = append(s.alerts, a)
}

func contractEntity(id int64) string { return fmt.Sprintf("contract:%d", id) }
func customerEntity(id int64) string { return fmt.Sprintf("customer:%d", id) }

func (s *scan) maxLate(contractID int64) int {
	worst := 0
	for _, pay := range s.p.Payments[contractID] {
		if d := pay.DaysLateAt(s.asOf); d > worst {
			worst = d
		}
	}
	return worst
}

func (s *scan) paymentDelay() {
	ew := s.cfg.EarlyWarning
	s.delayed = make(map[int64]bool)
	for _, pos := range s.p.Active() {
		c := pos.Contract
		days := s.maxLate(c.ID)
		if days <= ew.PaymentDelayDays {
			continue
		}
		sev := Warning
		switch {
		case days > ew.UrgentDelayDays:
			sev = Urgent
		case days > ew.CriticalDelayDays:
			sev = Critical
		}
		s.delayed[c.ID] = true
		s.add(Alert{
			Signal:     PaymentDelay,
			Severity:   sev,
			ContractID: c.ID,
			CustomerID: c.CustomerID,
			Entity:     contractEntity(c.ID),
			Metric:     float64(days),
			Threshold:  float64(ew.PaymentDelayDays),
			Exposure:   pos.Balance(),
			Message:    fmt.Sprintf("contract %d is %d days past due (%s)", c.ID, days, pos.Customer.Name),
			Action:     "contact customer and start dunning",
		})
	}
}

func (s *scan) highUtilization() {
	ew := s.cfg.EarlyWarning
	s.highUtil = make(map[int64]bool)
	for _, pos := range s.p.Active() {
		c := pos.Contract
		if c.CreditLimit == 0 {
			continue
		}
		u := c.Utilization()
		if u <= ew.UtilizationThreshold {
			continue
		}
		sev := Info
		switch {
		case u >= ew.UtilizationCritical:
			sev = Critical
		case u >= ew.UtilizationWarning:
			sev = Warning
		}
		s.highUtil[c.ID] = true
		s.add(Alert{
			Signal:     HighUtilization,
			Severity:   sev,
			ContractID: c.ID,
			CustomerID: c.CustomerID,
			Entity:     contractEntity(c.ID),
			Metric:     credit.Round2(u * 100),
			Threshold:  ew.UtilizationThreshold * 100,
			Exposure:   pos.Balance(),
			Message:    fmt.Sprintf("contract %d uses %.1f%% of its limit", c.ID, u*100),
			Action:     "review limit or agree a repayment plan",
		})
	}
}

func (s *scan) ratingDowngrade() {
	ew := s.cfg.EarlyWarning
	// both boundary days are in the window; changes carry a time of day
	from := s.asOf.AddDate(0, 0, -ew.DowngradeWindowDays)
	end := s.asOf.AddDate(0, 0, 1)
	s.downgraded = make(map[int64]bool)

	worst := make(map[int64]credit.RatingChange)
	for _, rc := range s.p.RatingChanges {
		if !rc.Downgrade() || rc.ChangedAt.Before(from) || !rc.ChangedAt.Before(end) {
			continue
		}
		prev, ok := worst[rc.CustomerID]
		n, pn := rc.NewRating.Notches(rc.OldRating), prev.NewRating.Notches(prev.OldRating)
		if !ok || n > pn || (n == pn && rc.ChangedAt.After(prev.ChangedAt)) {
			worst[rc.CustomerID] = rc
		}
	}

	exposure := make(map[int64]float64)
	for _, pos := range s.p.Active() {
		exposure[pos.Customer.ID] += pos.Balance()
	}

	for custID, rc := range worst {
		n := rc.NewRating.Notches(rc.OldRating)
		sev := Info
		switch {
		case n >= 3 || rc.NewRating.Rank() >= credit.CCC.Rank():
			sev = Critical
		case n == 2:
			sev = Warning
		}
		s.downgraded[custID] = true
		s.add(Alert{
			Signal:     RatingDowngrade,
			Severity:   sev,
			CustomerID: custID,
			Entity:     customerEntity(custID),
			Metric:     float64(n),
			Threshold:  1,
			Exposure:   exposure[custID],
			Message: fmt.Sprintf("%s downgraded %s -> %s on %s",
				s.p.Customers[custID].Name, rc.OldRating, rc.NewRating, rc.ChangedAt.Format(time.DateOnly)),
			Action: "review customer and collateral",
		})
	}
}

func (s *scan) compoundRisk() {
	need := s.cfg.EarlyWarning.CompoundMinSignals
	for _, pos := range s.p.Active() {
		c := pos.Contract
		n := 0
		for _, hit := range []bool{s.delayed[c.ID], s.highUtil[c.ID], s.downgraded[c.CustomerID]} {
			if hit {
				n++
			}
		}
		if n < need {
			continue
		}
		s.add(Alert{
			Signal:     CompoundRisk,
			Severity:   Critical,
			ContractID: c.ID,
			CustomerID: c.CustomerID,
			Entity:     contractEntity(c.ID),
			Metric:     float64(n),
			Threshold:  float64(need),
			Exposure:   pos.Balance(),
			Message:    fmt.Sprintf("contract %d shows %d concurrent warning signals", c.ID, n),
			Action:     "escalate to credit committee",
		})
	}
}

func (s *scan) paymentTrend() {
	ew := s.cfg.EarlyWarning
	from := s.asOf.AddDate(0, -ew.TrendMonths, 0)
	for _, pos := range s.p.Active() {
		c := pos.Contract
		total, late := 0, 0
		for _, pay := range s.p.Payments[c.ID] {
			if pay.DueDate.Before(from) || pay.DueDate.After(s.asOf) {
				continue
			}
			total++
			if pay.DaysLateAt(s.asOf) > 0 {
				late++
			}
		}
		share := credit.Ratio(float64(late), float64(total))
		if late <= ew.TrendMinLate || share <= ew.TrendLateShare {
			continue
		}
		s.add(Alert{
			Signal:     PaymentTrend,
			Severity:   Warning,
			ContractID: c.ID,
			CustomerID: c.CustomerID,
			Entity:     contractEntity(c.ID),
			Metric:     credit.Round2(share * 100),
			Threshold:  ew.TrendLateShare * 100,
			Exposure:   pos.Balance(),
			Message:    fmt.Sprintf("%d of %d payments late in the last %d months", late, total, ew.TrendMonths),
			Action:     "analyse payment behaviour",
		})
	}
}

func (s *scan) financialDeterioration() {
	ew := s.cfg.EarlyWarning
	type agg struct {
		exposure float64
		late     int
	}
	byCustomer := make(map[int64]*agg)
	for _, pos := range s.p.Active() {
		g := byCustomer[pos.Customer.ID]
		if g == nil {
			g = &agg{}
			byCustomer[pos.Customer.ID] = g
		}
		g.exposure += pos.Balance()
		for _, pay := range s.p.Payments[pos.Contract.ID] {
			if pay.DaysLateAt(s.asOf) > ew.PaymentDelayDays {
				g.late++
			}
		}
	}

	for custID, g := range byCustomer {
		cust := s.p.Customers[custID]
		cw := cust.Creditworthiness
		if cw >= 50 || (g.late == 0 && cw >= 40) {
			continue
		}
		score := 0
		switch {
		case cw < 30:
			score += 3
		case cw < 40:
			score += 2
		}
		if g.late > 3 {
			score += 2
		}
		if cust.Rating.Rank() >= credit.CCC.Rank() {
			score += 3
		}
		var sev Severity
		switch {
		case score >= 4:
			sev = Critical
		case score >= 2:
			sev = Warning
		default:
			continue
		}
		s.add(Alert{
			Signal:     FinancialDeterioration,
			Severity:   sev,
			CustomerID: custID,
			Entity:     customerEntity(custID),
			Metric:     float64(score),
			Threshold:  2,
			Exposure:   g.exposure,
			Message: fmt.Sprintf("%s: creditworthiness %.1f, %d late payments, rating %s",
				cust.Name, cw, g.late, cust.Rating),
			Action: "run a full customer review",
		})
	}
}

func (s *scan) limitBreach(r *concentration.Report) {
	for _, ls := range r.Limits {
		if !ls.Active {
			continue
		}
		var sev Severity
		switch ls.State {
		case concentration.LimitBreached:
			sev = Urgent
		case concentration.LimitCritical:
			sev = Critical
		case concentration.LimitWarning:
			sev = Warning
		default:
			continue
		}
		l := ls.Limit
		warn, crit := l.Thresholds()
		threshold := 100.0
		switch ls.State {
		case concentration.LimitCritical:
			threshold = crit
		case concentration.LimitWarning:
			threshold = warn
		}
		var custID int64
		if l.Type == credit.LimitCustomer {
			custID = l.ReferenceID
		}
		s.add(Alert{
			Signal:     LimitBreach,
			Severity:   sev,
			CustomerID: custID,
			Entity:     fmt.Sprintf("limit:%d", l.ID),
			Metric:     l.UtilizationPct,
			Threshold:  threshold,
			Exposure:   l.Utilization,
			Message:    fmt.Sprintf("%s limit %q at %.2f%% of %.2f", l.Type, l.Name, l.UtilizationPct, l.Amount),
			Action:     "escalate to " + escalation(l),
		})
	}
}

func escalation(l credit.RiskLimit) string {
	if l.EscalationTo != "" {
		return l.EscalationTo
	}
	return "risk management"
}

func (s *scan) concentrationBreach(r *concentration.Report) {
	frac := s.cfg.EarlyWarning.ConcentrationWarnFraction
	for _, sh := range r.Industries {
		var sev Severity
		switch {
		case sh.Share > sh.Ceiling:
			sev = Critical
		case sh.Share > sh.Ceiling*frac:
			sev = Warning
		default:
			continue
		}
		s.add(Alert{
			Signal:    ConcentrationBreach,
			Severity:  sev,
			Entity:    "industry:" + sh.Key,
			Metric:    sh.Share,
			Threshold: sh.Ceiling,
			Exposure:  sh.Exposure,
			Message:   fmt.Sprintf("industry %s holds %.2f%% of active exposure", sh.Key, sh.Share),
			Action:    "limit new business in " + sh.Key,
		})
	}
}

// economic averages region-wide indicators over the window and flags each region once.
func (s *scan) economic() {
	ew := s.cfg.EarlyWarning
	from := s.asOf.AddDate(0, 0, -ew.IndicatorWindowDays)

	type series struct{ unemployment, insolvency, cycle []float64 }
	byRegion := make(map[string]*series)
	for _, ind := range s.p.Indicators {
		if ind.Industry != "" || ind.Date.Before(from) || ind.Date.After(s.asOf) {
			continue
		}
		r := byRegion[ind.Region]
		if r == nil {
			r = &series{}
			byRegion[ind.Region] = r
		}
		r.unemployment = append(r.unemployment, ind.UnemploymentRate)
		r.insolvency = append(r.insolvency, ind.InsolvencyRate)
		r.cycle = append(r.cycle, ind.BusinessCycleIndex)
	}

	regions := make([]string, 0, len(byRegion))
	for k := range byRegion {
		regions = append(regions, k)
	}
	sort.Strings(regions)

	for _, region := range regions {
		r := byRegion[region]
		checks := []struct {
			name      string
			mean      float64
			threshold float64
			breached  bool
		}{
			{"unemployment", stat.Mean(r.unemployment, nil), ew.UnemploymentMax, false},
			{"insolvency", stat.Mean(r.insolvency, nil), ew.InsolvencyMax, false},
			{"business_cycle", stat.Mean(r.cycle, nil), ew.BusinessCycleMin, false},
		}
		checks[0].breached = checks[0].mean > checks[0].threshold
		checks[1].breached = checks[1].mean > checks[1].threshold
		checks[2].breached = checks[2].mean < checks[2].threshold

		for _, c := range checks {
			if !c.breached {
				continue
			}
			s.add(Alert{
				Signal:    Economic,
				Severity:  Info,
				Entity:    fmt.Sprintf("region:%s:%s", region, c.name),
				Metric:    c.mean,
				Threshold: c.threshold,
				Message:   fmt.Sprintf("%s in %s averages %.2f against %.2f", c.name, region, c.mean, c.threshold),
				Action:    "review regional exposure",
			})
		}
	}
}
