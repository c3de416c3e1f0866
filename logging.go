package icapclient

import (
	"github.com/sirupsen/logrus"
)

// log is the package-level logger. Callers embedding this client in a
// larger service can swap it out wholesale with SetLogger, or narrow it
// per request via entryFor.
var log = logrus.New()

// SetLogger lets an embedding application point the client at its own
// logrus instance, so adaptation-engine diagnostics land in the same
// structured log stream as the rest of the service.
func SetLogger(l *logrus.Logger) {
	if l != nil {
		log = l
	}
}

func entryFor(tag string, mode Mode) *logrus.Entry {
	return log.WithFields(logrus.Fields{
		"request": tag,
		"mode":    mode.String(),
	})
}

func logWarn(msg string, kv ...interface{}) {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields[key] = kv[i+1]
	}
	log.WithFields(fields).Warn(msg)
}
