package icapclient

import (
	"io"
	"os"
)

// tempFileSink is the scoped body sink used once a response body exceeds
// bufferSink's in-memory threshold. It is removed on Close regardless of
// how the adaptation call ended, per §5's resource model; deletion
// failures are swallowed and merely logged, per §7.
type tempFileSink struct {
	f    *os.File
	path string
}

func newTempFileSink() (*tempFileSink, error) {
	f, err := os.CreateTemp("", "icap-body-*.tmp")
	if err != nil {
		return nil, err
	}
	return &tempFileSink{f: f, path: f.Name()}, nil
}

func (t *tempFileSink) Write(p []byte) (int, error) { return t.f.Write(p) }

func (t *tempFileSink) Reader() (io.ReadCloser, error) {
	if _, err := t.f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return readCloserNoop{t.f}, nil
}

func (t *tempFileSink) Close() error {
	closeErr := t.f.Close()
	if err := os.Remove(t.path); err != nil {
		logWarn("temp file cleanup", "path", t.path, "err", err)
	}
	return closeErr
}

// readCloserNoop wraps an *os.File so Close doesn't also remove the file;
// removal is tempFileSink.Close's job, run once at the end of the call.
type readCloserNoop struct {
	f *os.File
}

func (r readCloserNoop) Read(p []byte) (int, error) { return r.f.Read(p) }
func (r readCloserNoop) Close() error                { return nil }
