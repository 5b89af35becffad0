package cmd

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func makeLogger(isDebug bool) *zap.SugaredLogger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if isDebug {
		logConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	logConfig.DisableStacktrace = true
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.OutputPaths = []string{"stderr"}

	logger, err := logConfig.Build()
	if err != nil {
		panic(err)
	}

	return logger.Sugar()
}
