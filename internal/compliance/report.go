package compliance

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Report is the structured view of a worker's completion report. The raw
// JSON is untrusted and free-form; only the fields the checker understands
// are lifted out, the rest stays available as Extras.
type Report struct {
	AgentsUsed     []string
	StepsCompleted []string
	Extras         map[string]string
}

// ParseReport extracts the known fields from a completion report's raw
// JSON. Invalid or empty input yields a zero report: compliance then rests
// on log evidence alone.
func ParseReport(raw string) Report {
	var r Report
	if raw == "" || !gjson.Valid(raw) {
		return r
	}

	for _, v := range gjson.Get(raw, "agents_used").Array() {
		if s := v.String(); s != "" {
			r.AgentsUsed = append(r.AgentsUsed, s)
		}
	}
	for _, v := range gjson.Get(raw, "steps_completed").Array() {
		if s := v.String(); s != "" {
			r.StepsCompleted = append(r.StepsCompleted, s)
		}
	}

	gjson.Parse(raw).ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case "agents_used", "steps_completed":
		default:
			if r.Extras == nil {
				r.Extras = make(map[string]string)
			}
			r.Extras[key.String()] = value.Raw
		}
		return true
	})
	return r
}

// ClaimsAgent reports whether the report lists the agent in agents_used.
func (r Report) ClaimsAgent(agent string) bool {
	return containsFold(r.AgentsUsed, agent)
}

// ClaimsStep reports whether the report lists the step in steps_completed.
func (r Report) ClaimsStep(step string) bool {
	return containsFold(r.StepsCompleted, step)
}

func containsFold(list []string, want string) bool {
	for _, s := range list {
		if strings.EqualFold(s, want) {
			return true
		}
	}
	return false
}
