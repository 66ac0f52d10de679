package calculator

import (
	"errors"
	"fmt"
	"time"

	"churn-history/pkg/models"
)

// RunError porte la date d'analyse, le type d'échec et la cause.
// errors.Is fonctionne à la fois sur la sentinelle du type et sur la cause.
type RunError struct {
	Date time.Time
	Kind models.ErrorKind
	Err  error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("churn analysis %s: %s: %v", e.Date.Format(models.DateLayout), e.Kind, e.Err)
}

func (e *RunError) Unwrap() []error {
	return []error{e.Kind.Sentinel(), e.Err}
}

// NewRunError classe err d'après la sentinelle qu'il porte, sinon fallback.
func NewRunError(d time.Time, fallback models.ErrorKind, err error) *RunError {
	kind := fallback
	switch {
	case errors.Is(err, models.ErrMalformedRecord):
		kind = models.KindMalformedRecord
	case errors.Is(err, models.ErrDataSourceUnavailable):
		kind = models.KindDataSourceUnavailable
	case errors.Is(err, models.ErrHistoryStoreUnavailable):
		kind = models.KindHistoryStoreUnavailable
	}
	return &RunError{Date: d, Kind: kind, Err: err}
}

// KindOf renvoie le type d'un échec d'exécution (0 si err n'est pas un *RunError).
func KindOf(err error) models.ErrorKind {
	var re *RunError
	if errors.As(err, &re) {
		return re.Kind
	}
	return 0
}
