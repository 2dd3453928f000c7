// Package guard switches binaries into test mode. Blank-import it from tests
// that call a main function so no Postgres, Redis or Kafka connection is
// attempted.
package guard

import "os"

// EnvVar is read by app.InTestMode.
const EnvVar = "ODYSSEY_TEST_MODE"

func init() {
	if os.Getenv(EnvVar) == "" {
		_ = os.Setenv(EnvVar, "1")
	}
	// Never publish from a test binary, even if the caller's shell exports brokers.
	_ = os.Unsetenv("KAFKA_BROKERS")
}
