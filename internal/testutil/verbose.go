package testutil

import (
	"os"
	"strings"
)

// TestLogger é a parte de *testing.T usada aqui.
type TestLogger interface {
	Helper()
	Logf(format string, args ...interface{})
}

// IsTestVerbose verifica se os testes rodam com -v (ou GO_TEST_VERBOSE=1).
func IsTestVerbose() bool {
	for _, arg := range os.Args {
		if strings.Contains(arg, "test.v") {
			return true
		}
	}
	return os.Getenv("GO_TEST_VERBOSE") == "1"
}

// LogIfVerboseWithTest registra a mensagem no output do teste apenas em modo verbose.
func LogIfVerboseWithTest(t TestLogger, format string, args ...interface{}) {
	if !IsTestVerbose() || t == nil {
		return
	}
	t.Helper()
	t.Logf(format, args...)
}
