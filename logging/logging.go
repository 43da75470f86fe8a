// Provide application-wide logging with pre-defined log levels.
// It is just concerned with putting strings into the designated
// writers and thus hides stuff like Panic() or Fatal().
//
// By default logs of level WARNING and ERROR are printed to stderr.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

func init() {
	Initialize(LevelWarning, nil, nil)
}

type LogLevel int

const (
	LevelNone LogLevel = iota
	LevelError
	LevelWarning
	LevelInfo
	LevelDebug
)

type logger struct {
	errLogger *logrus.Logger // ERROR and WARNING
	logLogger *logrus.Logger // INFO and DEBUG
}

var currentLogger logger

func newLogrus(w io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors: true,
		FullTimestamp: true,
	})

	return l
}

// Initialize the application wide logger to a specific log level.
// This should ideally be called once at the beginning of the application.
// Custom writers can be specified as well: errWriter will be used for
// log levels ERROR and WARNING, logWriter for everything else.
// These may be set to nil, in which case they default to stdout and stderr.
func Initialize(l LogLevel, logWriter io.Writer, errWriter io.Writer) {
	if logWriter == nil {
		logWriter = os.Stdout
	}

	if errWriter == nil {
		errWriter = os.Stderr
	}

	// PanicLevel is never used for logging, so it silences a logger
	errLevel, logLevel := logrus.PanicLevel, logrus.PanicLevel

	switch {
	case l >= LevelDebug:
		errLevel, logLevel = logrus.WarnLevel, logrus.DebugLevel
	case l >= LevelInfo:
		errLevel, logLevel = logrus.WarnLevel, logrus.InfoLevel
	case l >= LevelWarning:
		errLevel = logrus.WarnLevel
	case l >= LevelError:
		errLevel = logrus.ErrorLevel
	}

	currentLogger = logger{
		errLogger: newLogrus(errWriter, errLevel),
		logLogger: newLogrus(logWriter, logLevel),
	}
}

func Error(s string) {
	currentLogger.errLogger.Error(s)
}

func Errorf(format string, v ...any) {
	currentLogger.errLogger.Errorf(format, v...)
}

func Warning(s string) {
	currentLogger.errLogger.Warning(s)
}

func Warningf(format string, v ...any) {
	currentLogger.errLogger.Warningf(format, v...)
}

func Info(s string) {
	currentLogger.logLogger.Info(s)
}

func Infof(format string, v ...any) {
	currentLogger.logLogger.Infof(format, v...)
}

func Debug(s string) {
	currentLogger.logLogger.Debug(s)
}

func Debugf(format string, v ...any) {
	currentLogger.logLogger.Debugf(format, v...)
}
