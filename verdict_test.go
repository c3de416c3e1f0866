package icapclient

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headersWith(pairs ...string) *HeaderInformation {
	h := NewHeaderInformation()
	for i := 0; i+1 < len(pairs); i += 2 {
		h.add(pairs[i], pairs[i+1])
	}
	return h
}

func TestInterpretVerdict(t *testing.T) {
	type testSample struct {
		name             string
		headers          *HeaderInformation
		bodyText         string
		hasBody          bool
		compareIdentical bool
		wantKind         VerdictKind
		wantExplanation  string
	}

	sampleTable := []testSample{
		{
			name:     "clean with no body captured",
			headers:  headersWith(),
			wantKind: VerdictClean,
		},
		{
			name:            "threat signalled by vendor header, no body",
			headers:         headersWith("X-Virus-Name", "EICAR-Test-File"),
			wantKind:        VerdictThreatFound,
			wantExplanation: "EICAR-Test-File",
		},
		{
			name:            "threat explanation prefers body text over header",
			headers:         headersWith("X-Virus-Name", "EICAR-Test-File"),
			bodyText:        "blocked: malware detected",
			hasBody:         true,
			wantKind:        VerdictThreatFound,
			wantExplanation: "blocked: malware detected",
		},
		{
			name:            "threat with no explanation anywhere",
			headers:         headersWith("X-Blocked", ""),
			wantKind:        VerdictThreatFound,
			wantExplanation: "n/a",
		},
		{
			name:             "not identical when digests mismatch and comparison enabled",
			headers:          headersWith("X-Identical-Content", "false"),
			compareIdentical: true,
			wantKind:         VerdictNotIdentical,
		},
		{
			name:             "identical content ignored when comparison disabled",
			headers:          headersWith("X-Identical-Content", "false"),
			compareIdentical: false,
			wantKind:         VerdictClean,
		},
	}

	for _, sample := range sampleTable {
		t.Run(sample.name, func(t *testing.T) {
			got := interpretVerdict(sample.headers, RESPMOD, sample.bodyText, sample.hasBody, sample.compareIdentical)

			if !assert.Equal(t, sample.wantKind, got.Kind) {
				t.Logf("full verdict for %s: %s", sample.name, spew.Sdump(got))
			}
			if sample.wantExplanation != "" {
				assert.Equal(t, sample.wantExplanation, got.Explanation)
			}
		})
	}
}

func TestIsThreat(t *testing.T) {
	require.False(t, isThreat(headersWith()), "expected no threat for empty headers")
	require.True(t, isThreat(headersWith("X-Infection-Found", "Yes")), "expected a threat when a vendor threat header is present")
}
