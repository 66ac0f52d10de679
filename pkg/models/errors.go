package models

import (
	"errors"
	"fmt"
	"math"
)

// ErrorKind classe les échecs fatals d'une exécution.
type ErrorKind int

const (
	KindDataSourceUnavailable ErrorKind = iota + 1
	KindHistoryStoreUnavailable
	KindMalformedRecord
)

var (
	ErrDataSourceUnavailable   = errors.New("customer data source unavailable")
	ErrHistoryStoreUnavailable = errors.New("history store unavailable")
	ErrMalformedRecord         = errors.New("malformed customer record")
)

func (k ErrorKind) String() string {
	switch k {
	case KindDataSourceUnavailable:
		return "DataSourceUnavailable"
	case KindHistoryStoreUnavailable:
		return "HistoryStoreUnavailable"
	case KindMalformedRecord:
		return "MalformedRecord"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Sentinel renvoie l'erreur sentinelle associée au type.
func (k ErrorKind) Sentinel() error {
	switch k {
	case KindDataSourceUnavailable:
		return ErrDataSourceUnavailable
	case KindHistoryStoreUnavailable:
		return ErrHistoryStoreUnavailable
	case KindMalformedRecord:
		return ErrMalformedRecord
	}
	return nil
}

// RecordError décrit une valeur hors domaine dans une ligne client.
type RecordError struct {
	CustomerID string
	Field      string
	Value      any
	Reason     string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("customer %q: %s=%v: %s", e.CustomerID, e.Field, e.Value, e.Reason)
}

func (e *RecordError) Is(target error) bool { return target == ErrMalformedRecord }

// Validate refuse les lignes corrompues au lieu de les corriger en silence.
func (r CustomerRecord) Validate() error {
	if r.CustomerID == "" {
		return &RecordError{Field: "customerID", Value: r.CustomerID, Reason: "identifiant vide"}
	}
	if r.Churn != Churned && r.Churn != Retained {
		return &RecordError{CustomerID: r.CustomerID, Field: "Churn", Value: int(r.Churn), Reason: "valeur inconnue"}
	}
	if r.Contract < MonthToMonth || r.Contract > TwoYear {
		return &RecordError{CustomerID: r.CustomerID, Field: "Contract", Value: int(r.Contract), Reason: "valeur inconnue"}
	}
	if r.OnlineSecurity < ServiceYes || r.OnlineSecurity > NoInternetService {
		return &RecordError{CustomerID: r.CustomerID, Field: "OnlineSecurity", Value: int(r.OnlineSecurity), Reason: "valeur inconnue"}
	}
	if r.TechSupport < ServiceYes || r.TechSupport > NoInternetService {
		return &RecordError{CustomerID: r.CustomerID, Field: "TechSupport", Value: int(r.TechSupport), Reason: "valeur inconnue"}
	}
	if r.TenureMonths < 0 {
		return &RecordError{CustomerID: r.CustomerID, Field: "tenure", Value: r.TenureMonths, Reason: "négatif"}
	}
	if math.IsNaN(r.MonthlyCharges) || math.IsInf(r.MonthlyCharges, 0) || r.MonthlyCharges < 0 {
		return &RecordError{CustomerID: r.CustomerID, Field: "MonthlyCharges", Value: r.MonthlyCharges, Reason: "négatif ou non fini"}
	}
	return nil
}
