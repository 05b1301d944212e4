package scorer

import (
	"math"
	"strings"

	"jobboard/matching-service/internal/model"
)

const currencyMismatchScore = 50

// Salary compares the job's range with the candidate's expectation on a
// monthly basis. Overlapping ranges score 100; otherwise the gap is charged
// relative to the larger of the two minimums. A missing endpoint is open.
func Salary(job *model.Job, cand *model.Candidate) model.DimensionResult {
	if (job.SalaryMin == nil && job.SalaryMax == nil) || (cand.DesiredSalaryMin == nil && cand.DesiredSalaryMax == nil) {
		return result(100, StatusNotSpecified, nil)
	}

	jobCur := strings.ToUpper(strings.TrimSpace(job.SalaryCurrency))
	candCur := strings.ToUpper(strings.TrimSpace(cand.SalaryCurrency))
	if jobCur != "" && candCur != "" && jobCur != candCur {
		return result(currencyMismatchScore, StatusPartial, map[string]any{
			"job_currency":       jobCur,
			"candidate_currency": candCur,
		})
	}

	jLo := lower(job.SalaryMin, job.SalaryPeriod)
	jHi := upper(job.SalaryMax, job.SalaryPeriod)
	cLo := lower(cand.DesiredSalaryMin, model.SalaryMonthly)
	cHi := upper(cand.DesiredSalaryMax, model.SalaryMonthly)

	details := map[string]any{}
	putFinite(details, "job_monthly_min", jLo)
	putFinite(details, "job_monthly_max", jHi)
	putFinite(details, "candidate_min", cLo)
	putFinite(details, "candidate_max", cHi)

	if jLo <= cHi && cLo <= jHi {
		return result(100, StatusPerfect, details)
	}

	var gap float64
	if jHi < cLo {
		gap = cLo - jHi
		details["direction"] = "below_expectation"
	} else {
		gap = jLo - cHi
		details["direction"] = "above_expectation"
	}
	details["gap"] = gap

	denom := math.Max(jLo, cLo)
	if denom <= 0 || math.IsInf(denom, 0) {
		return result(0, StatusPoor, details)
	}
	score := 100 - math.Min(100, 100*gap/denom)
	status := StatusPartial
	if score < 50 {
		status = StatusPoor
	}
	return result(score, status, details)
}

func lower(v *float64, p model.SalaryPeriod) float64 {
	if v == nil {
		return math.Inf(-1)
	}
	return p.Monthly(*v)
}

func upper(v *float64, p model.SalaryPeriod) float64 {
	if v == nil {
		return math.Inf(1)
	}
	return p.Monthly(*v)
}

func putFinite(m map[string]any, key string, v float64) {
	if !math.IsInf(v, 0) {
		m[key] = v
	}
}
