package calculator

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"churn-history/pkg/models"

	"github.com/shopspring/decimal"
)

// RollingWindowDays : la moyenne glissante couvre [D-6, D-1], jamais D lui-même.
const RollingWindowDays = 6

// Window renvoie les bornes incluses de la fenêtre glissante pour la date d.
func Window(d time.Time) (from, to time.Time) {
	d = models.Day(d)
	return d.AddDate(0, 0, -RollingWindowDays), d.AddDate(0, 0, -1)
}

// rate = part * 100 / total, 0 si total = 0 (pas une erreur).
func rate(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

func orZero(v sql.NullFloat64) float64 {
	if !v.Valid {
		return 0
	}
	return v.Float64
}

func round2(name string, x float64) (decimal.Decimal, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return decimal.Zero, fmt.Errorf("%w: %s non fini: %v", models.ErrMalformedRecord, name, x)
	}
	return decimal.NewFromFloat(x).Round(2), nil
}

// rollingAverage : moyenne des taux stockés dans [D-6, D-1]; taux du jour si aucun.
func rollingAverage(d time.Time, today float64, window []models.ChurnHistoryEntry) decimal.Decimal {
	from, to := Window(d)
	sum := decimal.Zero
	n := int64(0)
	for _, e := range window {
		day := models.Day(e.AnalysisDate)
		if day.Before(from) || day.After(to) {
			continue
		}
		sum = sum.Add(e.ChurnRate)
		n++
	}
	if n == 0 {
		return decimal.NewFromFloat(today)
	}
	return sum.Div(decimal.NewFromInt(n))
}

// BuildEntry combine le snapshot du jour et l'historique lu (History Recorder, partie calcul).
// prev est l'entrée de D-1 (nil si absente), window les entrées de la fenêtre glissante.
func BuildEntry(d time.Time, snap models.DailyChurnSnapshot, prev *models.ChurnHistoryEntry, window []models.ChurnHistoryEntry) (models.ChurnHistoryEntry, error) {
	d = models.Day(d)
	if err := snap.Validate(); err != nil {
		return models.ChurnHistoryEntry{}, fmt.Errorf("snapshot: %w: %w", models.ErrMalformedRecord, err)
	}

	churnRate := rate(snap.ChurnedCustomers, snap.TotalCustomers)
	highRiskRate := rate(snap.HighRiskChurned, snap.HighRiskCustomers)

	change := decimal.Zero
	if prev != nil && models.Day(prev.AnalysisDate).Equal(d.AddDate(0, 0, -1)) {
		change = decimal.NewFromFloat(churnRate).Sub(prev.ChurnRate)
	}
	avg7 := rollingAverage(d, churnRate, window)

	e := models.ChurnHistoryEntry{
		AnalysisDate:          d,
		TotalCustomers:        snap.TotalCustomers,
		ChurnedCustomers:      snap.ChurnedCustomers,
		ChurnRateChange:       change.Round(2),
		ChurnRate7DayAvg:      avg7.Round(2),
		ChurnMonthToMonth:     snap.ChurnMonthToMonth,
		ChurnOneYear:          snap.ChurnOneYear,
		ChurnTwoYear:          snap.ChurnTwoYear,
		ChurnSeniorCitizen:    snap.ChurnSeniorCitizen,
		ChurnNoOnlineSecurity: snap.ChurnNoOnlineSecurity,
		ChurnNoTechSupport:    snap.ChurnNoTechSupport,
		HighRiskCustomers:     snap.HighRiskCustomers,
		HighRiskChurned:       snap.HighRiskChurned,
	}

	fields := []struct {
		name string
		in   float64
		out  *decimal.Decimal
	}{
		{"churn_rate", churnRate, &e.ChurnRate},
		{"high_risk_churn_rate", highRiskRate, &e.HighRiskChurnRate},
		{"avg_tenure_churned", orZero(snap.AvgTenureChurned), &e.AvgTenureChurned},
		{"avg_tenure_retained", orZero(snap.AvgTenureRetained), &e.AvgTenureRetained},
		{"avg_monthly_charges_churned", orZero(snap.AvgMonthlyChargesChurned), &e.AvgMonthlyChargesChurned},
		{"avg_monthly_charges_retained", orZero(snap.AvgMonthlyChargesRetained), &e.AvgMonthlyChargesRetained},
		{"revenue_loss_churn", snap.RevenueLost, &e.RevenueLost},
	}
	for _, f := range fields {
		v, err := round2(f.name, f.in)
		if err != nil {
			return models.ChurnHistoryEntry{}, err
		}
		*f.out = v
	}
	return e, nil
}
