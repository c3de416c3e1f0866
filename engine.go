package icapclient

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// validate drives the adaptation engine's state machine for one call:
// Init -> Sent-Preview -> [Await-Continue] -> [Sent-Remainder] ->
// Reading-Verdict -> [Reading-Body] -> Done, per §4.4.
func (c *Client) validate(ctx context.Context, mode Mode, reqInfo RequestInformation, resource Resource) (*HeaderInformation, error) {
	if resource.Length == 0 {
		return NewHeaderInformation(), nil
	}
	if err := resource.validate(); err != nil {
		return nil, err
	}

	cfg, err := c.remoteConfiguration(ctx, reqInfo)
	if err != nil {
		return nil, err
	}

	preview := effectivePreview(cfg.PreviewSize, resource.Length, reqInfo.PreviewOverride)
	tag := requestTag(time.Now(), mode, reqInfo.RequestSource)
	entry := entryFor(tag, mode)

	transport, err := c.manager.Open(ctx, c.svc, ICAPConnConfig{ConnectTimeout: reqInfo.ConnectTimeout, ReadTimeout: reqInfo.ReadTimeout})
	if err != nil {
		return nil, newIOError("validate connect", err)
	}
	if transport == nil {
		return nil, newIOError("validate connect", ErrNoTransport)
	}
	defer transport.Close()

	inputHash := sha256.New()

	envInfo := reqInfo
	if envInfo.Allow204 == Allow204Auto && !cfg.Allow204 {
		envInfo.Allow204 = Allow204False
	}
	env := buildEnvelope(mode, c.svc, envInfo, resource, preview)
	if err := env.writeTo(transport); err != nil {
		return nil, newIOError("validate write envelope", err)
	}

	ieof := int64(preview) >= resource.Length

	if preview > 0 {
		previewBuf := make([]byte, preview)
		if _, err := io.ReadFull(io.TeeReader(resource.Body, inputHash), previewBuf); err != nil {
			return nil, newIOError("validate read preview", err)
		}
		if err := writeChunk(transport, previewBuf); err != nil {
			return nil, newIOError("validate write preview chunk", err)
		}
	}
	if err := writeTerminator(transport, ieof); err != nil {
		return nil, newIOError("validate write preview terminator", err)
	}
	if err := transport.Flush(); err != nil {
		return nil, newIOError("validate flush preview", err)
	}
	entry.Debug("preview sent")

	if err := armReadDeadline(transport, reqInfo.ReadTimeout); err != nil {
		return nil, newIOError("validate arm read deadline", err)
	}
	first, err := readICAPResponse(transport.Reader(), reqInfo.MaxHeaderBytes)
	if err != nil {
		return nil, newIOError("validate read response", err)
	}

	var final *HeaderInformation
	if !ieof && first.Status == 100 {
		entry.Debug("continuing with remainder")
		if err := sendRemainder(transport, resource.Body, inputHash); err != nil {
			return nil, newIOError("validate write remainder", err)
		}
		if err := transport.Flush(); err != nil {
			return nil, newIOError("validate flush remainder", err)
		}
		if err := armReadDeadline(transport, reqInfo.ReadTimeout); err != nil {
			return nil, newIOError("validate arm read deadline", err)
		}
		final, err = readICAPResponse(transport.Reader(), reqInfo.MaxHeaderBytes)
		if err != nil {
			return nil, newIOError("validate read verdict", err)
		}
	} else {
		final = first
	}

	return c.handleVerdict(transport, entry, mode, reqInfo, resource, final, inputHash)
}

// effectivePreview computes the per-call preview size: the caller's
// override if set, else the server preview, in either case capped at the
// resource length and floored at zero, per §3's invariants.
func effectivePreview(serverPreview int, resourceLength int64, override *int) int {
	preview := serverPreview
	if override != nil {
		preview = *override
	}
	if int64(preview) > resourceLength {
		preview = int(resourceLength)
	}
	if preview < 0 {
		preview = 0
	}
	return preview
}

// sendRemainder streams the rest of the resource body in buffer-sized
// chunks (default 8192 bytes), per §4.4 stage 4, terminated by a plain
// "0\r\n\r\n" (never ieof — by definition we only get here when the whole
// body did not fit in the preview).
func sendRemainder(w io.Writer, body io.Reader, inputHash hash.Hash) error {
	const bufSize = 8192
	buf := make([]byte, bufSize)
	tee := io.TeeReader(body, inputHash)

	for {
		n, err := tee.Read(buf)
		if n > 0 {
			if werr := writeChunk(w, buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}

	return writeTerminator(w, false)
}

// armReadDeadline re-arms the transport's read deadline ahead of a single
// blocking read, per §4.2/§5: ReadTimeout bounds each receive individually,
// not the cumulative exchange. A zero timeout leaves the deadline untouched
// (no deadline at all).
func armReadDeadline(transport Transport, readTimeout time.Duration) error {
	if readTimeout <= 0 {
		return nil
	}
	return transport.SetReadDeadline(time.Now().Add(readTimeout))
}

// readICAPResponse parses one ICAP response envelope. The synthetic
// statusline header is left in place; handleVerdict strips it before the
// headers reach the interpreter or the caller, per §4.1.
func readICAPResponse(br *bufio.Reader, maxHeaderBytes int) (*HeaderInformation, error) {
	return parseHeaderBlock(br, maxHeaderBytes)
}

// handleVerdict implements §4.4 stages 5-6 (Reading-Verdict, Reading-Body):
// dispatch on the final response's status, optionally stream an
// encapsulated body while computing its digest, and run the verdict
// interpreter over the result. A 200 without an Encapsulated header is
// returned as-is, without running the interpreter.
func (c *Client) handleVerdict(transport Transport, entry *logrus.Entry, mode Mode, reqInfo RequestInformation, resource Resource, resp *HeaderInformation, inputHash hash.Hash) (*HeaderInformation, error) {
	switch resp.Status {
	case 204:
		stripSyntheticStatusline(resp)
		entry.Debug("204 no content, clean")
		return resp, nil

	case 404:
		return nil, newIOError("validate", errNotFound)

	case 200:
		return c.handleOKVerdict(transport, entry, mode, reqInfo, resource, resp, inputHash)

	default:
		stripSyntheticStatusline(resp)
		return nil, &UnknownResponseError{Status: resp.Status, Reason: resp.Reason, Headers: resp}
	}
}

func (c *Client) handleOKVerdict(transport Transport, entry *logrus.Entry, mode Mode, reqInfo RequestInformation, resource Resource, resp *HeaderInformation, inputHash hash.Hash) (*HeaderInformation, error) {
	stripSyntheticStatusline(resp)

	encapsulated := resp.Get("Encapsulated")
	if encapsulated == "" {
		entry.Warn("200 response missing Encapsulated header, returning headers only")
		return resp, nil
	}

	sections, err := parseEncapsulatedSections(encapsulated)
	if err != nil {
		return nil, err
	}

	if err := armReadDeadline(transport, reqInfo.ReadTimeout); err != nil {
		return nil, newIOError("validate arm read deadline", err)
	}
	hasBodySection, err := skipEncapsulatedHeadBlocks(transport.Reader(), sections)
	if err != nil {
		return nil, newIOError("validate read encapsulated head", err)
	}

	allow204ExplicitlyFalse := reqInfo.Allow204 == Allow204False
	proceedToBody := hasBodySection && (mode != REQMOD || !allow204ExplicitlyFalse)

	if !proceedToBody {
		entry.Debug("200 response without body read, returning headers only")
		if verdict := interpretVerdict(resp, mode, "", false, false); verdict.Kind == VerdictThreatFound {
			return nil, &ContentBlockedError{Message: "content blocked", Explanation: verdict.Explanation, Headers: resp, Verdict: verdict}
		}
		return resp, nil
	}

	return c.readBody(transport, entry, mode, reqInfo, resource, resp, inputHash, c.compareIdenticalContent)
}

// readBody streams the encapsulated body into a scoped sink while
// computing its digest, then sets the synthetic digest/identical-content
// headers described in §4.4 stage 6 and §6.
func (c *Client) readBody(transport Transport, entry *logrus.Entry, mode Mode, reqInfo RequestInformation, resource Resource, resp *HeaderInformation, inputHash hash.Hash, compareIdentical bool) (*HeaderInformation, error) {
	sink := newBufferSink(64 * 1024)
	defer sink.Close()

	if err := armReadDeadline(transport, reqInfo.ReadTimeout); err != nil {
		return nil, newIOError("validate arm read deadline", err)
	}
	outputHash := sha256.New()
	n, err := readChunkedBody(transport.Reader(), io.MultiWriter(sink, outputHash))
	framingOK := err == nil

	if err != nil {
		entry.WithError(err).Warn("malformed chunked body")
	}

	resp.set("X-Request-Message-Digest", hex.EncodeToString(inputHash.Sum(nil)))
	resp.set("X-Response-Message-Digest", hex.EncodeToString(outputHash.Sum(nil)))

	if compareIdentical {
		identical := framingOK && n == resource.Length && hex.EncodeToString(inputHash.Sum(nil)) == hex.EncodeToString(outputHash.Sum(nil))
		if identical {
			resp.set("X-Identical-Content", "true")
		} else {
			resp.set("X-Identical-Content", "false")
		}
	}

	bodyText, hasBody := bodyTextFor(sink)
	verdict := interpretVerdict(resp, mode, bodyText, hasBody, compareIdentical)

	switch verdict.Kind {
	case VerdictThreatFound:
		return nil, &ContentBlockedError{Message: "content blocked", Explanation: verdict.Explanation, Headers: resp, Verdict: verdict}
	case VerdictNotIdentical:
		return nil, &ContentBlockedError{Message: "response content not identical to submission", Explanation: verdict.Explanation, Headers: resp, Verdict: verdict}
	default:
		return resp, nil
	}
}

// bodyTextFor returns the captured body as text for the verdict interpreter.
// A body small enough to stay in memory is read directly; one that spilled
// past the sink's threshold is still usable, per §4.5 priority 1, by
// reading it back off the backing temp file.
func bodyTextFor(sink *bufferSink) (string, bool) {
	if b, ok := sink.Bytes(); ok {
		return string(b), true
	}

	r, err := sink.Reader()
	if err != nil {
		return "", false
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return "", false
	}
	return string(b), true
}
