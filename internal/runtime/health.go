package runtime

import "strings"

// Verdict classifies a healthcheck probe. It is a closed enumeration; the
// free-form engine text is translated exactly once, in Classify.
type Verdict int

const (
	// Unhealthy means the probe reported a failing healthcheck.
	Unhealthy Verdict = iota
	// Healthy means the probe passed.
	Healthy
	// NotApplicable means the image defines no healthcheck. Treated as
	// success: without an objective signal there is nothing to refuse on.
	NotApplicable
)

func (v Verdict) String() string {
	switch v {
	case Healthy:
		return "healthy"
	case NotApplicable:
		return "not applicable"
	default:
		return "unhealthy"
	}
}

// Classify translates a probe's raw status text into a Verdict. This is the
// only place engine output syntax is interpreted: "no defined healthcheck"
// means the image has none, "unhealthy" means a failed probe, anything else
// counts as a pass.
func Classify(output string) Verdict {
	switch {
	case strings.Contains(output, "no defined healthcheck"):
		return NotApplicable
	case strings.Contains(output, "unhealthy"):
		return Unhealthy
	default:
		return Healthy
	}
}
