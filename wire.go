package icapclient

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

const (
	crlf       = "\r\n"
	doubleCRLF = "\r\n\r\n"

	icapVersionPrefix = "ICAP/"
	chunkTerminator   = "0" + crlf + crlf
	ieofTerminator    = "0; ieof" + crlf + crlf

	// statuslineHeader is a synthetic header carrying the raw ICAP status
	// line, stripped before the verdict interpreter ever sees the map.
	statuslineHeader = "X-Icap-Statusline"
)

// envelope is the result of building the ICAP request line, headers, and
// the encapsulated HTTP head blocks for one adaptation call.
type envelope struct {
	requestLine    string
	headerLines    []string
	reqHeaderBlock string  // always present, even if empty ("")
	respHeaderBlock string // only present for RESPMOD/FILEMOD
}

// buildEnvelope formats the ICAP request line, standard + custom headers,
// Preview, and Encapsulated header for one call, following §4.1/§4.4.
func buildEnvelope(mode Mode, svc ServiceInformation, req RequestInformation, resource Resource, preview int) envelope {
	requestLine := fmt.Sprintf("%s icap://%s:%d/%s ICAP/%s", mode.String(), svc.Host, svc.Port, svc.ServiceName, req.APIVersion)

	headers := []string{
		"Host: " + req.RequestSource,
		"Connection: close",
		"User-Agent: " + req.UserAgent,
	}

	switch req.Allow204 {
	case Allow204True:
		headers = append(headers, "Allow: 204")
	case Allow204Auto:
		headers = append(headers, "Allow: 204")
	}

	custom := req.sanitizedHeaders()
	names := make([]string, 0, len(custom))
	for n := range custom {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		headers = append(headers, fmt.Sprintf("%s: %s", n, custom[n]))
	}

	headers = append(headers, fmt.Sprintf("Preview: %d", preview))

	reqHeaderBlock, respHeaderBlock := buildEncapsulatedHTTP(mode, req, resource)
	headers = append(headers, "Encapsulated: "+encapsulatedValue(mode, reqHeaderBlock, respHeaderBlock))

	return envelope{
		requestLine:     requestLine,
		headerLines:     headers,
		reqHeaderBlock:  reqHeaderBlock,
		respHeaderBlock: respHeaderBlock,
	}
}

// buildEncapsulatedHTTP synthesizes the inner HTTP message head(s) the
// resource is framed inside of. REQMOD adapts a request carrying the
// resource as its body; RESPMOD/FILEMOD adapt a response to a synthetic GET,
// the response carrying the resource as its body.
func buildEncapsulatedHTTP(mode Mode, req RequestInformation, resource Resource) (reqBlock, respBlock string) {
	path := resource.escapedPath()

	switch mode {
	case REQMOD:
		reqBlock = fmt.Sprintf("POST %s HTTP/1.1%sHost: %s%sContent-Length: %d%s%s",
			path, crlf, req.RequestSource, crlf, resource.Length, crlf, crlf)
		return reqBlock, ""
	default: // RESPMOD, FILEMOD
		reqBlock = fmt.Sprintf("GET %s HTTP/1.1%sHost: %s%s%s", path, crlf, req.RequestSource, crlf, crlf)
		respBlock = fmt.Sprintf("HTTP/1.1 200 OK%sContent-Length: %d%s%s", crlf, resource.Length, crlf, crlf)
		return reqBlock, respBlock
	}
}

// encapsulatedValue computes the Encapsulated header body per §4.4's offset
// arithmetic. Header blocks are terminated by a blank line that counts
// towards their length.
func encapsulatedValue(mode Mode, reqBlock, respBlock string) string {
	if respBlock == "" {
		return fmt.Sprintf("req-hdr=0, %s-body=%d", mode.tag(), len(reqBlock))
	}
	return fmt.Sprintf("req-hdr=0, %s-hdr=%d, %s-body=%d", mode.tag(), len(reqBlock), mode.tag(), len(reqBlock)+len(respBlock))
}

// optionsEnvelope builds the OPTIONS probe request described in §4.3.
func optionsEnvelope(svc ServiceInformation, req RequestInformation) envelope {
	requestLine := fmt.Sprintf("OPTIONS icap://%s:%d/%s ICAP/%s", svc.Host, svc.Port, svc.ServiceName, req.APIVersion)
	headers := []string{
		"Host: " + req.RequestSource,
		"Connection: close",
		"User-Agent: " + req.UserAgent,
		"Encapsulated: null-body=0",
	}
	return envelope{requestLine: requestLine, headerLines: headers}
}

// writeTo serializes the envelope's ICAP portion (request line + headers +
// blank line) followed by any encapsulated HTTP head blocks.
func (e envelope) writeTo(w io.Writer) error {
	if _, err := io.WriteString(w, e.requestLine+crlf); err != nil {
		return err
	}
	for _, h := range e.headerLines {
		if _, err := io.WriteString(w, h+crlf); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w, crlf); err != nil {
		return err
	}
	if e.reqHeaderBlock != "" {
		if _, err := io.WriteString(w, e.reqHeaderBlock); err != nil {
			return err
		}
	}
	if e.respHeaderBlock != "" {
		if _, err := io.WriteString(w, e.respHeaderBlock); err != nil {
			return err
		}
	}
	return nil
}

// writeChunk emits one HTTP/1.1 chunked-encoding frame: hex length, CRLF,
// payload, CRLF. An empty payload is a legal (zero-length) chunk.
func writeChunk(w io.Writer, data []byte) error {
	if _, err := io.WriteString(w, fmt.Sprintf("%x%s", len(data), crlf)); err != nil {
		return err
	}
	if len(data) > 0 {
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, crlf)
	return err
}

// writeTerminator emits the chunk stream's terminator: "0; ieof\r\n\r\n" if
// this is the only chunk sequence the server will ever see for this body,
// else the plain "0\r\n\r\n" used before a 100-continue or after the final
// remainder chunk.
func writeTerminator(w io.Writer, ieof bool) error {
	if ieof {
		_, err := io.WriteString(w, ieofTerminator)
		return err
	}
	_, err := io.WriteString(w, chunkTerminator)
	return err
}

// parseHeaderBlock reads lines from b until a blank line, decoding the
// first as "ICAP/<v> <status> <reason>" and the rest as "Name: Value"
// pairs. The raw status line is preserved under statuslineHeader.
func parseHeaderBlock(b *bufio.Reader, maxBytes int) (*HeaderInformation, error) {
	hi := NewHeaderInformation()
	total := 0
	first := true

	for {
		line, err := b.ReadString('\n')
		if err != nil {
			if line == "" {
				return nil, err
			}
		}
		total += len(line)
		if maxBytes > 0 && total > maxBytes {
			return nil, fmt.Errorf("%w: header block exceeds %d bytes", ErrInvalidTCPMsg, maxBytes)
		}

		trimmed := strings.TrimRight(line, "\r\n")

		if first {
			first = false
			status, reason, perr := parseStatusLine(trimmed)
			if perr != nil {
				return nil, perr
			}
			hi.Status = status
			hi.Reason = reason
			hi.set(statuslineHeader, trimmed)
			continue
		}

		if trimmed == "" {
			break
		}

		name, value := splitHeaderLine(trimmed)
		if name != "" {
			hi.add(name, value)
		}
	}

	return hi, nil
}

func parseStatusLine(line string) (int, string, error) {
	if !strings.HasPrefix(line, icapVersionPrefix) {
		return 0, "", fmt.Errorf("%w: %s", ErrInvalidTCPMsg, line)
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return 0, "", fmt.Errorf("%w: %s", ErrInvalidTCPMsg, line)
	}
	status, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, "", fmt.Errorf("%w: %s", ErrInvalidTCPMsg, line)
	}
	reason := ""
	if len(parts) == 3 {
		reason = strings.TrimSpace(parts[2])
	}
	return status, reason, nil
}

func splitHeaderLine(line string) (string, string) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", ""
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:])
}

// stripSyntheticStatusline removes the diagnostics-only header before the
// verdict interpreter or caller ever observes the header map.
func stripSyntheticStatusline(h *HeaderInformation) {
	h.del(statuslineHeader)
}
