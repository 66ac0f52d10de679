package models

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

/*
LOAD → types simples pour les lignes clients lues depuis la table source.
*/

// ChurnStatus indique si un client est parti ("Yes") ou resté ("No").
type ChurnStatus int

const (
	Retained ChurnStatus = iota
	Churned
)

func (s ChurnStatus) String() string {
	if s == Churned {
		return "Yes"
	}
	return "No"
}

// ParseChurnStatus accepte les valeurs de la colonne Churn ("Yes"/"No").
func ParseChurnStatus(raw string) (ChurnStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes":
		return Churned, nil
	case "no":
		return Retained, nil
	}
	return Retained, fmt.Errorf("churn status %q inconnu", raw)
}

// ContractType est la durée d'engagement du client.
type ContractType int

const (
	MonthToMonth ContractType = iota + 1
	OneYear
	TwoYear
)

func (c ContractType) String() string {
	switch c {
	case MonthToMonth:
		return "Month-to-month"
	case OneYear:
		return "One year"
	case TwoYear:
		return "Two year"
	}
	return fmt.Sprintf("ContractType(%d)", int(c))
}

// ParseContractType accepte "Month-to-month", "One year", "Two year".
func ParseContractType(raw string) (ContractType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "month-to-month":
		return MonthToMonth, nil
	case "one year":
		return OneYear, nil
	case "two year":
		return TwoYear, nil
	}
	return 0, fmt.Errorf("contract %q inconnu", raw)
}

// ServiceLevel couvre OnlineSecurity et TechSupport.
// ServiceNone ("No") est l'abonnement absent; NoInternetService est une valeur distincte.
type ServiceLevel int

const (
	ServiceYes ServiceLevel = iota + 1
	ServiceNone
	NoInternetService
)

func (l ServiceLevel) String() string {
	switch l {
	case ServiceYes:
		return "Yes"
	case ServiceNone:
		return "No"
	case NoInternetService:
		return "No internet service"
	}
	return fmt.Sprintf("ServiceLevel(%d)", int(l))
}

// ParseServiceLevel accepte "Yes", "No", "No internet service".
func ParseServiceLevel(raw string) (ServiceLevel, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes":
		return ServiceYes, nil
	case "no":
		return ServiceNone, nil
	case "no internet service":
		return NoInternetService, nil
	}
	return 0, fmt.Errorf("service level %q inconnu", raw)
}

// CustomerRecord représente une ligne de la table clients (lecture seule pour nous).
type CustomerRecord struct {
	CustomerID     string
	Churn          ChurnStatus
	Contract       ContractType
	SeniorCitizen  bool
	OnlineSecurity ServiceLevel
	TechSupport    ServiceLevel
	TenureMonths   int
	MonthlyCharges float64
}

// IsChurned est vrai pour Churn = "Yes".
func (r CustomerRecord) IsChurned() bool { return r.Churn == Churned }

// IsHighRisk : mensuel, sans support technique, ancienneté < 12 mois.
func (r CustomerRecord) IsHighRisk() bool {
	return r.Contract == MonthToMonth && r.TechSupport == ServiceNone && r.TenureMonths < 12
}

/*
COMPUTE → agrégats du jour, avant calcul des tendances
*/

// DailyChurnSnapshot contient les agrégats calculés sur l'ensemble des clients.
// Les moyennes restent NULL (Valid=false) quand le groupe est vide; la substitution
// par 0 se fait uniquement à la construction de l'entrée d'historique.
type DailyChurnSnapshot struct {
	TotalCustomers   int64
	ChurnedCustomers int64

	ChurnMonthToMonth     int64
	ChurnOneYear          int64
	ChurnTwoYear          int64
	ChurnSeniorCitizen    int64
	ChurnNoOnlineSecurity int64
	ChurnNoTechSupport    int64

	AvgTenureChurned          sql.NullFloat64
	AvgTenureRetained         sql.NullFloat64
	AvgMonthlyChargesChurned  sql.NullFloat64
	AvgMonthlyChargesRetained sql.NullFloat64

	RevenueLost float64

	HighRiskCustomers int64
	HighRiskChurned   int64
}

// Validate vérifie les invariants de confinement des compteurs.
func (s DailyChurnSnapshot) Validate() error {
	if s.TotalCustomers < 0 {
		return fmt.Errorf("total_customers négatif: %d", s.TotalCustomers)
	}
	if s.ChurnedCustomers < 0 || s.ChurnedCustomers > s.TotalCustomers {
		return fmt.Errorf("churned_customers=%d hors [0, %d]", s.ChurnedCustomers, s.TotalCustomers)
	}
	segments := map[string]int64{
		"churn_month_to_month":     s.ChurnMonthToMonth,
		"churn_one_year":           s.ChurnOneYear,
		"churn_two_year":           s.ChurnTwoYear,
		"churn_senior_citizen":     s.ChurnSeniorCitizen,
		"churn_no_online_security": s.ChurnNoOnlineSecurity,
		"churn_no_tech_support":    s.ChurnNoTechSupport,
	}
	for name, v := range segments {
		if v < 0 || v > s.ChurnedCustomers {
			return fmt.Errorf("%s=%d hors [0, %d]", name, v, s.ChurnedCustomers)
		}
	}
	if s.HighRiskCustomers < 0 || s.HighRiskCustomers > s.TotalCustomers {
		return fmt.Errorf("high_risk_customers=%d hors [0, %d]", s.HighRiskCustomers, s.TotalCustomers)
	}
	if s.HighRiskChurned < 0 || s.HighRiskChurned > s.HighRiskCustomers || s.HighRiskChurned > s.ChurnedCustomers {
		return fmt.Errorf("high_risk_churned=%d incohérent (high_risk=%d churned=%d)",
			s.HighRiskChurned, s.HighRiskCustomers, s.ChurnedCustomers)
	}
	return nil
}

/*
STORE → ligne persistée de l'historique, une par date d'analyse
*/

// ChurnHistoryEntry est la ligne de churn_analysis_history.
// Tous les taux et montants sont arrondis à 2 décimales.
type ChurnHistoryEntry struct {
	AnalysisDate time.Time // minuit UTC

	TotalCustomers   int64
	ChurnedCustomers int64
	ChurnRate        decimal.Decimal
	ChurnRateChange  decimal.Decimal
	ChurnRate7DayAvg decimal.Decimal

	ChurnMonthToMonth     int64
	ChurnOneYear          int64
	ChurnTwoYear          int64
	ChurnSeniorCitizen    int64
	ChurnNoOnlineSecurity int64
	ChurnNoTechSupport    int64

	AvgTenureChurned          decimal.Decimal
	AvgTenureRetained         decimal.Decimal
	AvgMonthlyChargesChurned  decimal.Decimal
	AvgMonthlyChargesRetained decimal.Decimal
	RevenueLost               decimal.Decimal

	HighRiskCustomers int64
	HighRiskChurned   int64
	HighRiskChurnRate decimal.Decimal
}

// UpsertResult indique si la date existait déjà avant l'écriture.
type UpsertResult struct {
	Existed bool
}

/*
DATES → les dates d'analyse sont des jours calendaires, normalisés à minuit UTC
*/

// DateLayout est le format des dates d'analyse (flags, colonnes DATE).
const DateLayout = "2006-01-02"

// Day ramène t au jour calendaire (minuit UTC), en gardant l'année/mois/jour de t.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDay lit une date "YYYY-MM-DD".
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("format attendu YYYY-MM-DD (ex: 2025-03-01): %w", err)
	}
	return t, nil
}
