package calculator

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"churn-history/pkg/models"
)

func TestExtract_HundredCustomers(t *testing.T) {
	snap, err := Extract(population(100, 20, 8))
	require.NoError(t, err)

	require.Equal(t, int64(100), snap.TotalCustomers)
	require.Equal(t, int64(20), snap.ChurnedCustomers)
	require.Equal(t, int64(8), snap.ChurnMonthToMonth)
	require.Equal(t, int64(0), snap.ChurnOneYear)
	require.Equal(t, int64(12), snap.ChurnTwoYear)
	require.InDelta(t, 1600.0, snap.RevenueLost, 1e-9)

	require.True(t, snap.AvgTenureChurned.Valid)
	require.InDelta(t, 6.0, snap.AvgTenureChurned.Float64, 1e-9)
	require.InDelta(t, 24.0, snap.AvgTenureRetained.Float64, 1e-9)
	require.InDelta(t, 80.0, snap.AvgMonthlyChargesChurned.Float64, 1e-9)
	require.InDelta(t, 50.0, snap.AvgMonthlyChargesRetained.Float64, 1e-9)
	require.Zero(t, snap.HighRiskCustomers)
}

func TestExtract_Empty(t *testing.T) {
	snap, err := Extract(nil)
	require.NoError(t, err)
	require.Zero(t, snap.TotalCustomers)
	require.False(t, snap.AvgTenureChurned.Valid)
	require.False(t, snap.AvgTenureRetained.Valid)
	require.False(t, snap.AvgMonthlyChargesChurned.Valid)
	require.False(t, snap.AvgMonthlyChargesRetained.Valid)
}

func TestExtract_SegmentsAndHighRisk(t *testing.T) {
	recs := []models.CustomerRecord{
		// mensuel, sans support, 3 mois, parti : haut risque parti
		{CustomerID: "a", Churn: models.Churned, Contract: models.MonthToMonth, SeniorCitizen: true,
			OnlineSecurity: models.ServiceNone, TechSupport: models.ServiceNone, TenureMonths: 3, MonthlyCharges: 70.5},
		// haut risque resté
		{CustomerID: "b", Churn: models.Retained, Contract: models.MonthToMonth,
			OnlineSecurity: models.ServiceYes, TechSupport: models.ServiceNone, TenureMonths: 11, MonthlyCharges: 30},
		// 12 mois : pas haut risque
		{CustomerID: "c", Churn: models.Churned, Contract: models.MonthToMonth,
			OnlineSecurity: models.NoInternetService, TechSupport: models.ServiceNone, TenureMonths: 12, MonthlyCharges: 20},
		// "No internet service" n'est pas "No"
		{CustomerID: "d", Churn: models.Churned, Contract: models.OneYear,
			OnlineSecurity: models.NoInternetService, TechSupport: models.NoInternetService, TenureMonths: 1, MonthlyCharges: 19.5},
	}
	snap, err := Extract(recs)
	require.NoError(t, err)

	require.Equal(t, int64(4), snap.TotalCustomers)
	require.Equal(t, int64(3), snap.ChurnedCustomers)
	require.Equal(t, int64(2), snap.ChurnMonthToMonth)
	require.Equal(t, int64(1), snap.ChurnOneYear)
	require.Equal(t, int64(1), snap.ChurnSeniorCitizen)
	require.Equal(t, int64(1), snap.ChurnNoOnlineSecurity)
	require.Equal(t, int64(2), snap.ChurnNoTechSupport)
	require.Equal(t, int64(2), snap.HighRiskCustomers)
	require.Equal(t, int64(1), snap.HighRiskChurned)
	require.InDelta(t, 110.0, snap.RevenueLost, 1e-9)
	require.NoError(t, snap.Validate())
}

func TestExtract_ContainmentProperties(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	contracts := []models.ContractType{models.MonthToMonth, models.OneYear, models.TwoYear}
	levels := []models.ServiceLevel{models.ServiceYes, models.ServiceNone, models.NoInternetService}

	for round := 0; round < 50; round++ {
		n := rng.IntN(300)
		recs := make([]models.CustomerRecord, n)
		for i := range recs {
			recs[i] = models.CustomerRecord{
				CustomerID:     "c",
				Churn:          models.ChurnStatus(rng.IntN(2)),
				Contract:       contracts[rng.IntN(3)],
				SeniorCitizen:  rng.IntN(2) == 1,
				OnlineSecurity: levels[rng.IntN(3)],
				TechSupport:    levels[rng.IntN(3)],
				TenureMonths:   rng.IntN(73),
				MonthlyCharges: 20 + rng.Float64()*100,
			}
		}
		snap, err := Extract(recs)
		require.NoError(t, err)
		require.NoError(t, snap.Validate())
		require.Equal(t, int64(n), snap.TotalCustomers)
		require.Equal(t, snap.ChurnedCustomers, snap.ChurnMonthToMonth+snap.ChurnOneYear+snap.ChurnTwoYear)
		require.GreaterOrEqual(t, snap.RevenueLost, 0.0)
	}
}

func TestAccumulator_RejectsMalformed(t *testing.T) {
	var acc Accumulator
	require.NoError(t, acc.Add(population(1, 1, 1)[0]))

	bad := models.CustomerRecord{CustomerID: "x", Churn: models.Churned, Contract: models.ContractType(9),
		OnlineSecurity: models.ServiceYes, TechSupport: models.ServiceYes}
	err := acc.Add(bad)
	require.ErrorIs(t, err, models.ErrMalformedRecord)
	var re *models.RecordError
	require.True(t, errors.As(err, &re))
	require.Equal(t, "Contract", re.Field)

	// la ligne rejetée n'est pas comptée
	require.Equal(t, int64(1), acc.Snapshot().TotalCustomers)
}
