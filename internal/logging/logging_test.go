package logging_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"marketdata/internal/config"
	"marketdata/internal/logging"
)

func TestNew(t *testing.T) {
	t.Parallel()

	logger, err := logging.New(config.Log{Level: "debug", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	require.Equal(t, logrus.DebugLevel, logger.GetLevel())
	require.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	_, err = logging.New(config.Log{Level: "loud"})
	require.Error(t, err)
	_, err = logging.New(config.Log{Level: "info", Format: "xml"})
	require.Error(t, err)
}

func TestNew_FileOutput(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.log")
	logger, err := logging.New(config.Log{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	logging.WithComponent(logger, "test").Info("hello")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var line map[string]any
	require.NoError(t, json.Unmarshal(b, &line))
	require.Equal(t, "hello", line["message"])
	require.Equal(t, "test", line["component"])
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	// Arrange
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	h := logging.Middleware(logrus.NewEntry(logger))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	// Act
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/status", nil))

	// Assert
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "/api/status", line["path"])
	require.EqualValues(t, http.StatusTeapot, line["status"])
}
