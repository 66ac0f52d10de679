package calculator

import (
	"database/sql"

	"churn-history/pkg/models"
)

// groupAvg garde somme et effectif; la moyenne d'un groupe vide reste NULL.
type groupAvg struct {
	sum float64
	n   int64
}

func (g *groupAvg) add(v float64) {
	g.sum += v
	g.n++
}

func (g groupAvg) value() sql.NullFloat64 {
	if g.n == 0 {
		return sql.NullFloat64{Valid: false}
	}
	return sql.NullFloat64{Float64: g.sum / float64(g.n), Valid: true}
}

// Accumulator agrège les lignes clients une par une (Metrics Extractor).
type Accumulator struct {
	snap models.DailyChurnSnapshot

	tenureChurned   groupAvg
	tenureRetained  groupAvg
	chargesChurned  groupAvg
	chargesRetained groupAvg
}

// Add valide puis intègre une ligne. Une ligne invalide n'est pas comptée.
func (a *Accumulator) Add(rec models.CustomerRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s := &a.snap
	s.TotalCustomers++

	highRisk := rec.IsHighRisk()
	if highRisk {
		s.HighRiskCustomers++
	}

	if !rec.IsChurned() {
		a.tenureRetained.add(float64(rec.TenureMonths))
		a.chargesRetained.add(rec.MonthlyCharges)
		return nil
	}

	s.ChurnedCustomers++
	switch rec.Contract {
	case models.MonthToMonth:
		s.ChurnMonthToMonth++
	case models.OneYear:
		s.ChurnOneYear++
	case models.TwoYear:
		s.ChurnTwoYear++
	}
	if rec.SeniorCitizen {
		s.ChurnSeniorCitizen++
	}
	if rec.OnlineSecurity == models.ServiceNone {
		s.ChurnNoOnlineSecurity++
	}
	if rec.TechSupport == models.ServiceNone {
		s.ChurnNoTechSupport++
	}
	if highRisk {
		s.HighRiskChurned++
	}
	s.RevenueLost += rec.MonthlyCharges
	a.tenureChurned.add(float64(rec.TenureMonths))
	a.chargesChurned.add(rec.MonthlyCharges)
	return nil
}

// Snapshot renvoie l'état courant des agrégats.
func (a *Accumulator) Snapshot() models.DailyChurnSnapshot {
	s := a.snap
	s.AvgTenureChurned = a.tenureChurned.value()
	s.AvgTenureRetained = a.tenureRetained.value()
	s.AvgMonthlyChargesChurned = a.chargesChurned.value()
	s.AvgMonthlyChargesRetained = a.chargesRetained.value()
	return s
}

// Extract calcule le snapshot d'un ensemble de clients déjà chargé.
func Extract(records []models.CustomerRecord) (models.DailyChurnSnapshot, error) {
	var acc Accumulator
	for _, r := range records {
		if err := acc.Add(r); err != nil {
			return models.DailyChurnSnapshot{}, err
		}
	}
	return acc.Snapshot(), nil
}
