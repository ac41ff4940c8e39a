package bridge

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// log is the package-level logger every bridge subsystem scopes off
// of, set up exactly the way govpp's shmclient/tcpclient adapters
// build theirs: a logrus.FieldLogger overridable with SetLogger,
// defaulting to a level gated by an environment variable so a
// developer can turn on verbose tracing without touching Options.
var log logrus.FieldLogger = defaultLogger()

// defaultLogger writes to stderr and, when BRIDGE_LOG_DIR is set, also
// to a size- and age-rotated log file under that directory — the same
// accommodation the original's per-session log file gets, since a
// client/server pair crashing mid-session is exactly when a developer
// wants a log that outlived the terminal that printed it.
func defaultLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(logOutput())
	level := logrus.InfoLevel
	if os.Getenv("BRIDGE_DEBUG") != "" {
		level = logrus.DebugLevel
	}
	l.SetLevel(level)
	return l.WithField("logger", "bridge")
}

func logOutput() io.Writer {
	dir := os.Getenv("BRIDGE_LOG_DIR")
	if dir == "" {
		return os.Stderr
	}
	fileSink := &lumberjack.Logger{
		Filename: filepath.Join(dir, "bridge.log"),
		MaxSize:  32, // MB
		MaxAge:   14, // days
		Compress: true,
	}
	return io.MultiWriter(os.Stderr, fileSink)
}

// SetLogger overrides the package-level logger, letting an embedding
// application route bridge diagnostics into its own structured log
// sink instead of stderr.
func SetLogger(l logrus.FieldLogger) {
	log = l
	commandLog = componentLog("command")
	handshakeLog = componentLog("handshake")
}

func componentLog(component string) logrus.FieldLogger {
	return log.WithField("component", component)
}

// applyLogLevel parses Options.LogLevel the way GlobalOptions does
// ("Debug"/"Info"/...), falling back to Info on anything unrecognized
// rather than failing session startup over a typo in config.
func applyLogLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	if std, ok := log.(*logrus.Entry); ok {
		std.Logger.SetLevel(lvl)
	}
}
