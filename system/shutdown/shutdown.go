package shutdown

import (
	"os"

	"github.com/rs/zerolog/log"
)

// FailCloser de-energizes every managed output.
type FailCloser interface {
	FailClosed() error
}

// ExitFunc terminates the process. Replaced in tests.
var ExitFunc = os.Exit

// Shutdown releases every output and exits. In safe mode outputs were never
// driven, so only the exit happens.
func Shutdown(out FailCloser, safeMode bool) {
	code := 0
	if !safeMode && out != nil {
		if err := out.FailClosed(); err != nil {
			log.Error().Err(err).Msg("Failed to de-energize outputs on shutdown")
			code = 1
		} else {
			log.Info().Msg("Fuel, pump and zone relays deactivated")
		}
	}
	ExitFunc(code)
}

func ShutdownWithError(out FailCloser, safeMode bool, err error, msg string) {
	log.Error().Err(err).Msg(msg)
	Shutdown(out, safeMode)
}
