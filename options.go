package icapclient

import (
	"context"
	"strconv"
	"strings"
	"time"
)

const defaultPreviewSize = 1024

// negotiateOptions runs the OPTIONS probe described in §4.3: send the
// request, expect 200, and extract Preview/Allow/Methods. Any non-200
// status or transport error is surfaced as an IOError; the caller clears
// its cache on error.
func negotiateOptions(ctx context.Context, manager ConnectionManager, svc ServiceInformation, req RequestInformation) (*RemoteServiceConfiguration, error) {
	transport, err := manager.Open(ctx, svc, ICAPConnConfig{ConnectTimeout: req.ConnectTimeout, ReadTimeout: req.ReadTimeout})
	if err != nil {
		return nil, newIOError("options connect", err)
	}
	if transport == nil {
		return nil, newIOError("options connect", ErrNoTransport)
	}
	defer transport.Close()

	env := optionsEnvelope(svc, req)
	if err := env.writeTo(transport); err != nil {
		return nil, newIOError("options write", err)
	}
	if err := transport.Flush(); err != nil {
		return nil, newIOError("options flush", err)
	}

	if req.ReadTimeout > 0 {
		if err := transport.SetReadDeadline(time.Now().Add(req.ReadTimeout)); err != nil {
			return nil, newIOError("options arm read deadline", err)
		}
	}
	hi, err := parseHeaderBlock(transport.Reader(), req.MaxHeaderBytes)
	if err != nil {
		return nil, newIOError("options read", err)
	}

	if hi.Status != 200 {
		return nil, newIOError("options", &UnknownResponseError{Status: hi.Status, Reason: hi.Reason, Headers: hi})
	}

	cfg := &RemoteServiceConfiguration{
		NegotiatedAt: time.Now(),
		PreviewSize:  parsePreviewHeader(hi.Get("Preview")),
		Allow204:     parseAllow204Header(hi.Get("Allow")),
		Headers:      hi,
	}

	methods, err := parseMethodsHeader(hi.Get("Methods"))
	if err != nil {
		return nil, newIOError("options", err)
	}
	cfg.Methods = methods

	return cfg, nil
}

func parsePreviewHeader(v string) int {
	if v == "" {
		return defaultPreviewSize
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		logWarn("unparsable Preview header, defaulting", "value", v, "default", defaultPreviewSize)
		return defaultPreviewSize
	}
	return n
}

func parseAllow204Header(v string) bool {
	if v == "" {
		return false
	}
	fields := strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) == 0 {
		return false
	}
	if !strings.EqualFold(fields[0], "204") {
		logWarn("Allow header does not advertise 204, defaulting to false", "value", v)
		return false
	}
	return true
}

func parseMethodsHeader(v string) ([]Mode, error) {
	if v == "" {
		return nil, nil
	}
	fields := strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
	modes := make([]Mode, 0, len(fields))
	for _, f := range fields {
		m, ok := parseMode(f)
		if !ok {
			return nil, ErrUnsupportedMode
		}
		modes = append(modes, m)
	}
	return modes, nil
}
