package logger

// Logger is the subset of *zap.SugaredLogger the harness packages depend on.
type Logger interface {
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
}
