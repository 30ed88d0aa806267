package pipeline

import (
	"errors"
	"fmt"

	"github.com/unijord/cdmcheck/pkg/enrich"
	"github.com/unijord/cdmcheck/pkg/reader"
	"github.com/unijord/cdmcheck/pkg/record"
	"github.com/unijord/cdmcheck/pkg/validate"
)

// ReasonRuleFailed prefixes the violation recorded when an enrichment rule
// cannot be evaluated for a row.
const ReasonRuleFailed = "rule failed"

type Status int

const (
	// StatusOK means the row passed validation and was written.
	StatusOK Status = iota

	// StatusFiltered means an enrichment filter dropped the row (not an error).
	StatusFiltered

	// StatusRejected means the row failed validation or a rule.
	StatusRejected
)

// String returns the string representation of Status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFiltered:
		return "filtered"
	case StatusRejected:
		return "rejected"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Outcome is what happened to one input row.
type Outcome struct {
	Status Status

	// Row is the raw input row.
	Row reader.Row

	// Record is the normalized record (only when Status == StatusOK).
	Record record.Record

	// Result holds the violations (only when Status == StatusRejected).
	Result *validate.Result
}

// Stats counts rows by outcome. Read always equals Valid+Rejected+Filtered.
type Stats struct {
	Read     int
	Valid    int
	Rejected int
	Filtered int
}

func (s *Stats) add(status Status) {
	s.Read++
	switch status {
	case StatusOK:
		s.Valid++
	case StatusFiltered:
		s.Filtered++
	case StatusRejected:
		s.Rejected++
	}
}

// ruleViolation turns an enrichment failure into a row violation so the row
// is rejected and quarantined like any other.
func ruleViolation(err error) validate.ColumnViolation {
	v := validate.ColumnViolation{Reason: fmt.Sprintf("%s: %v", ReasonRuleFailed, err)}
	var re *enrich.RuleError
	if errors.As(err, &re) {
		v.Column = re.Column
		v.Reason = fmt.Sprintf("%s: %v", ReasonRuleFailed, re.Err)
	}
	return v
}
