package utils_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/helmbump/internal/utils"
)

const testLogMessageConstant = "logger_factory_test_message"

func TestLoggerFactoryCreateLogger(t *testing.T) {
	testCases := []struct {
		name                string
		logLevel            utils.LogLevel
		logFormat           utils.LogFormat
		expectStructured    bool
		expectMessageLogged bool
	}{
		{name: "DebugStructured", logLevel: utils.LogLevelDebug, logFormat: utils.LogFormatStructured, expectStructured: true, expectMessageLogged: true},
		{name: "InfoStructured", logLevel: utils.LogLevelInfo, logFormat: utils.LogFormatStructured, expectStructured: true, expectMessageLogged: true},
		{name: "InfoConsole", logLevel: utils.LogLevelInfo, logFormat: utils.LogFormatConsole, expectMessageLogged: true},
		{name: "ErrorSuppressesInfo", logLevel: utils.LogLevelError, logFormat: utils.LogFormatStructured, expectStructured: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			outputPath := filepath.Join(t.TempDir(), "log.txt")
			logger, creationError := utils.NewLoggerFactoryWithOutputs(outputPath).CreateLogger(testCase.logLevel, testCase.logFormat)
			require.NoError(t, creationError)

			logger.Info(testLogMessageConstant)
			require.NoError(t, utils.SyncLogger(logger))

			captured, readError := os.ReadFile(outputPath)
			require.NoError(t, readError)
			trimmed := strings.TrimSpace(string(captured))
			if !testCase.expectMessageLogged {
				require.Empty(t, trimmed)
				return
			}
			require.Contains(t, trimmed, testLogMessageConstant)
			require.Equal(t, testCase.expectStructured, json.Valid([]byte(trimmed)))
		})
	}
}

func TestLoggerFactoryRejectsUnsupportedValues(t *testing.T) {
	factory := utils.NewLoggerFactory()

	logger, creationError := factory.CreateLogger(utils.LogLevel("verbose"), utils.LogFormatStructured)
	require.Error(t, creationError)
	require.Nil(t, logger)

	logger, creationError = factory.CreateLogger(utils.LogLevelInfo, utils.LogFormat("xml"))
	require.Error(t, creationError)
	require.Nil(t, logger)
}

func TestParseLogLevelAndFormat(t *testing.T) {
	level, levelError := utils.ParseLogLevel("  WARN ")
	require.NoError(t, levelError)
	require.Equal(t, utils.LogLevelWarn, level)

	_, levelError = utils.ParseLogLevel("trace")
	require.Error(t, levelError)

	format, formatError := utils.ParseLogFormat("Console")
	require.NoError(t, formatError)
	require.Equal(t, utils.LogFormatConsole, format)

	_, formatError = utils.ParseLogFormat("")
	require.Error(t, formatError)
}

func TestSyncLoggerAcceptsNil(t *testing.T) {
	require.NoError(t, utils.SyncLogger(nil))
}
