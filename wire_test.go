package icapclient

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

func TestBuildEncapsulatedHTTP(t *testing.T) {
	type testSample struct {
		name     string
		mode     Mode
		resource Resource
		wantResp bool
	}

	resource := Resource{Name: "sample.pdf", Length: 12}

	sampleTable := []testSample{
		{name: "reqmod has no synthetic response", mode: REQMOD, resource: resource, wantResp: false},
		{name: "respmod synthesizes a response", mode: RESPMOD, resource: resource, wantResp: true},
		{name: "filemod synthesizes a response", mode: FILEMOD, resource: resource, wantResp: true},
	}

	for _, sample := range sampleTable {
		t.Run(sample.name, func(t *testing.T) {
			reqBlock, respBlock := buildEncapsulatedHTTP(sample.mode, DefaultRequestInformation(), sample.resource)

			if !strings.Contains(reqBlock, sample.resource.escapedPath()) {
				t.Errorf("request block missing resource path: %q", reqBlock)
			}
			if sample.wantResp && respBlock == "" {
				t.Errorf("mode %s: expected a synthetic response block, got none", sample.mode)
			}
			if !sample.wantResp && respBlock != "" {
				t.Errorf("mode %s: expected no synthetic response block, got %q", sample.mode, respBlock)
			}
			if sample.mode == REQMOD && !strings.HasPrefix(reqBlock, "POST ") {
				t.Errorf("REQMOD should synthesize a POST, got %q", reqBlock)
			}
			if sample.mode != REQMOD && !strings.HasPrefix(reqBlock, "GET ") {
				t.Errorf("%s should synthesize a GET, got %q", sample.mode, reqBlock)
			}
		})
	}
}

func TestEncapsulatedValue(t *testing.T) {
	type testSample struct {
		name     string
		mode     Mode
		reqBlock string
		respBlock string
		want     string
	}

	sampleTable := []testSample{
		{
			name:     "reqmod body only",
			mode:     REQMOD,
			reqBlock: "0123456789",
			want:     "req-hdr=0, req-body=10",
		},
		{
			name:      "respmod hdr and body",
			mode:      RESPMOD,
			reqBlock:  "0123456789",
			respBlock: "abcde",
			want:      "req-hdr=0, res-hdr=10, res-body=15",
		},
		{
			name:      "filemod hdr and body",
			mode:      FILEMOD,
			reqBlock:  "01234",
			respBlock: "abcde",
			want:      "req-hdr=0, file-hdr=5, file-body=10",
		},
	}

	for _, sample := range sampleTable {
		t.Run(sample.name, func(t *testing.T) {
			got := encapsulatedValue(sample.mode, sample.reqBlock, sample.respBlock)
			if got != sample.want {
				t.Errorf("encapsulatedValue() = %q, want %q", got, sample.want)
			}
		})
	}
}

func TestWriteChunk(t *testing.T) {
	type testSample struct {
		data []byte
		want string
	}

	sampleTable := []testSample{
		{data: []byte("Hello World!"), want: "c\r\nHello World!\r\n"},
		{data: []byte(""), want: "0\r\n\r\n"},
	}

	for _, sample := range sampleTable {
		var buf bytes.Buffer
		if err := writeChunk(&buf, sample.data); err != nil {
			t.Fatal(err)
		}
		if got := buf.String(); got != sample.want {
			t.Errorf("writeChunk(%q) = %q, want %q", sample.data, got, sample.want)
		}
	}
}

func TestWriteTerminator(t *testing.T) {
	var buf bytes.Buffer
	if err := writeTerminator(&buf, true); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.String(), "0; ieof\r\n\r\n"; got != want {
		t.Errorf("writeTerminator(ieof) = %q, want %q", got, want)
	}

	buf.Reset()
	if err := writeTerminator(&buf, false); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.String(), "0\r\n\r\n"; got != want {
		t.Errorf("writeTerminator(!ieof) = %q, want %q", got, want)
	}
}

func TestParseHeaderBlock(t *testing.T) {
	raw := "ICAP/1.0 200 OK\r\n" +
		"Date: Mon, 10 Jan 2000 09:55:21 GMT\r\n" +
		"Preview: 1024\r\n" +
		"Encapsulated: req-hdr=0, null-body=170\r\n" +
		"\r\n"

	hi, err := parseHeaderBlock(bufio.NewReader(strings.NewReader(raw)), 0)
	if err != nil {
		t.Fatal(err)
	}

	if hi.Status != 200 {
		t.Errorf("Status = %d, want 200", hi.Status)
	}
	if hi.Reason != "OK" {
		t.Errorf("Reason = %q, want %q", hi.Reason, "OK")
	}
	if got := hi.Get("Preview"); got != "1024" {
		t.Errorf("Preview header = %q, want %q", got, "1024")
	}
	if got := hi.Get("preview"); got != "1024" {
		t.Errorf("case-insensitive lookup failed, got %q", got)
	}
}

// TestParseHeaderBlockPreservesCaseAndOrder guards the ordered, case-
// preserving multi-map invariant: a wire header's exact casing and its
// position relative to its neighbors must survive a parse, even though
// lookups remain case-insensitive.
func TestParseHeaderBlockPreservesCaseAndOrder(t *testing.T) {
	raw := "ICAP/1.0 200 OK\r\n" +
		"X-Virus-ID: EICAR-Test-File\r\n" +
		"ISTag: \"abc-123\"\r\n" +
		"X-Virus-ID: second-hit\r\n" +
		"\r\n"

	hi, err := parseHeaderBlock(bufio.NewReader(strings.NewReader(raw)), 0)
	if err != nil {
		t.Fatal(err)
	}

	// the synthetic statusline header is stored first, ahead of the three
	// wire headers.
	if len(hi.Headers) != 4 {
		t.Fatalf("got %d headers, want 4: %+v", len(hi.Headers), hi.Headers)
	}
	if got := hi.Headers[1].Name; got != "X-Virus-ID" {
		t.Errorf("first wire header name = %q, want original casing %q", got, "X-Virus-ID")
	}
	if got := hi.Headers[2].Name; got != "ISTag" {
		t.Errorf("second wire header name = %q, want %q, got reordered %v", got, "ISTag", hi.Headers)
	}

	if got := hi.Get("x-virus-id"); got != "EICAR-Test-File" {
		t.Errorf("case-insensitive Get = %q, want first value %q", got, "EICAR-Test-File")
	}
	if got := hi.Values("X-VIRUS-ID"); len(got) != 2 || got[0] != "EICAR-Test-File" || got[1] != "second-hit" {
		t.Errorf("Values(X-Virus-ID) = %v, want both occurrences in order", got)
	}
}

func TestParseHeaderBlockRejectsOversizedBlock(t *testing.T) {
	raw := "ICAP/1.0 200 OK\r\nX-Long: " + strings.Repeat("a", 100) + "\r\n\r\n"
	_, err := parseHeaderBlock(bufio.NewReader(strings.NewReader(raw)), 16)
	if err == nil {
		t.Fatal("expected an error for an oversized header block, got nil")
	}
}

func TestParseHeaderBlockRejectsMalformedStatusLine(t *testing.T) {
	raw := "not an icap status line\r\n\r\n"
	_, err := parseHeaderBlock(bufio.NewReader(strings.NewReader(raw)), 0)
	if err == nil {
		t.Fatal("expected an error for a malformed status line, got nil")
	}
}
