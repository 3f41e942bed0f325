package observability_test

import (
	"testing"

	"go.uber.org/zap"

	"github.com/spigot/spigot/internal/observability"
)

func TestCLILoggerInitialization(t *testing.T) {
	observability.InitCLILogger("spigot-test", false)

	if observability.CLILogger == nil {
		t.Fatal("CLI logger should not be nil after initialization")
	}

	observability.CLILogger.Info("cli logger ready",
		zap.String("component", "test"))
}

func TestServerLoggerInitialization(t *testing.T) {
	observability.InitServerLogger("spigot-test", "debug")

	if observability.ServerLogger == nil {
		t.Fatal("Server logger should not be nil after initialization")
	}

	observability.ServerLogger.Info("server logger ready",
		zap.String("component", "test"),
		zap.Int("sequence", 1))
}

func TestServerLoggerLevelFallback(t *testing.T) {
	// Unknown levels fall back to INFO rather than failing startup.
	observability.InitServerLogger("spigot-test", "bogus")

	if observability.ServerLogger == nil {
		t.Fatal("Server logger should survive an unknown level string")
	}
}
