package scorer

import (
	"fmt"
	"strings"

	"jobboard/matching-service/internal/model"
)

// JobText renders the canonical text embedded for a job.
func JobText(job *model.Job) string {
	var b strings.Builder
	writeLine(&b, "Job Title", job.Title)
	writeLine(&b, "Description", job.Description)
	writeLine(&b, "Requirements", job.Requirements)
	return strings.TrimSpace(b.String())
}

// CandidateText renders the canonical text embedded for a candidate.
func CandidateText(cand *model.Candidate) string {
	var b strings.Builder
	writeLine(&b, "Position", cand.CurrentPosition)
	writeLine(&b, "Bio", cand.Bio)
	for _, e := range cand.Experiences {
		entry := strings.TrimSpace(e.Title)
		if c := strings.TrimSpace(e.Company); c != "" {
			entry = fmt.Sprintf("%s at %s", entry, c)
		}
		if d := strings.TrimSpace(e.Description); d != "" {
			entry = fmt.Sprintf("%s: %s", entry, d)
		}
		writeLine(&b, "Experience", entry)
	}
	return strings.TrimSpace(b.String())
}

func writeLine(b *strings.Builder, label, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\n")
}
