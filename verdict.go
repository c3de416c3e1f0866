package icapclient

import "strings"

// threatHeaders are the vendor-dialect headers that, if present at all,
// indicate the remote service flagged the submitted content, per §4.5.
var threatHeaders = []string{
	"X-Infection-Found",
	"X-Violations-Found",
	"X-Blocked",
	"X-Virus-ID",
	"X-Virus-Name",
	"X-Block-Reason",
	"X-Block-Result",
}

// explanationHeaders are consulted, in order, when no body-derived
// explanation is available.
var explanationHeaders = []string{
	"X-Blocked",
	"X-Virus-ID",
	"X-Virus-Name",
}

// interpretVerdict inspects a completed exchange's headers (and, if one
// was captured, the encapsulated body text) to decide the outcome. bodyText
// is the UTF-8 decoded, trimmed content of the "<mode.tag>-body" section,
// if the engine captured one; hasBody tells interpretVerdict whether that
// capture happened at all (as opposed to the body being empty).
func interpretVerdict(h *HeaderInformation, mode Mode, bodyText string, hasBody bool, compareIdenticalContent bool) Verdict {
	if isThreat(h) {
		return Verdict{Kind: VerdictThreatFound, Explanation: explanationFor(h, bodyText, hasBody)}
	}

	if compareIdenticalContent {
		if v := h.Get("X-Identical-Content"); v != "" && strings.EqualFold(v, "false") {
			return Verdict{Kind: VerdictNotIdentical, Explanation: "response content differs from submitted content"}
		}
	}

	return Verdict{Kind: VerdictClean}
}

func isThreat(h *HeaderInformation) bool {
	for _, name := range threatHeaders {
		if h.Has(name) {
			return true
		}
	}
	return false
}

func explanationFor(h *HeaderInformation, bodyText string, hasBody bool) string {
	if hasBody {
		trimmed := strings.TrimSpace(bodyText)
		if trimmed != "" {
			return trimmed
		}
	}

	for _, name := range explanationHeaders {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			return v
		}
	}

	return "n/a"
}
