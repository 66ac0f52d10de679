package database

import (
	"fmt"
	"strings"
)

// historyDDL : taux en DECIMAL(7,2) (-100.00..100.00), montants en DECIMAL(14,2).
func historyDDL(d Dialect, table string) string {
	cols := []string{
		"analysis_date DATE NOT NULL PRIMARY KEY",
		"total_customers BIGINT NOT NULL",
		"churned_customers BIGINT NOT NULL",
		"churn_rate DECIMAL(7,2) NOT NULL",
		"churn_rate_change DECIMAL(7,2) NOT NULL",
		"churn_rate_7day_avg DECIMAL(7,2) NOT NULL",
		"churn_month_to_month BIGINT NOT NULL",
		"churn_one_year BIGINT NOT NULL",
		"churn_two_year BIGINT NOT NULL",
		"churn_senior_citizen BIGINT NOT NULL",
		"churn_no_online_security BIGINT NOT NULL",
		"churn_no_tech_support BIGINT NOT NULL",
		"avg_tenure_churned DECIMAL(10,2) NOT NULL",
		"avg_tenure_retained DECIMAL(10,2) NOT NULL",
		"avg_monthly_charges_churned DECIMAL(12,2) NOT NULL",
		"avg_monthly_charges_retained DECIMAL(12,2) NOT NULL",
		"revenue_loss_churn DECIMAL(14,2) NOT NULL",
		"high_risk_customers BIGINT NOT NULL",
		"high_risk_churned BIGINT NOT NULL",
		"high_risk_churn_rate DECIMAL(7,2) NOT NULL",
		"created_at " + d.timestampColumn(),
	}
	return d.createTable(table, indent(cols))
}

// customersDDL reprend les colonnes du pipeline amont.
func customersDDL(d Dialect, table string) string {
	cols := []string{
		"customerID VARCHAR(64) NOT NULL PRIMARY KEY",
		"gender VARCHAR(16)",
		"SeniorCitizen SMALLINT",
		"Partner VARCHAR(8)",
		"Dependents VARCHAR(8)",
		"tenure INT",
		"MonthlyCharges DECIMAL(10,2)",
		"TotalCharges DECIMAL(12,2)",
		"Churn VARCHAR(8)",
		"Contract VARCHAR(32)",
		"OnlineSecurity VARCHAR(32)",
		"TechSupport VARCHAR(32)",
	}
	return d.createTable(table, indent(cols))
}

func indent(cols []string) string {
	lines := make([]string, len(cols))
	for i, c := range cols {
		lines[i] = fmt.Sprintf("  %s", c)
	}
	return strings.Join(lines, ",\n")
}
