package bootstrap

import "fmt"

// Exit codes.
const (
	ExitSuccess       = 0
	ExitUnexpected    = 1
	ExitOptions       = 2
	ExitDaemonize     = 3
	ExitEnvironment   = 4
	ExitResourceLimit = 5
	ExitWorkingDir    = 6
	ExitCrypto        = 7
	ExitCookie        = 8
	ExitProxy         = 9
	ExitBind          = 10
	ExitAddins        = 11
	ExitAuth          = 12
	ExitPrivilegeDrop = 13
	ExitVerifyFailed  = 14
	ExitServerRun     = 15
	ExitSignalWait    = 16
)

// StepError is a fatal startup step failure.
type StepError struct {
	Step string
	Code int
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func fatal(step string, code int, err error) *StepError {
	return &StepError{Step: step, Code: code, Err: err}
}

// exitRequest ends startup early without an error, e.g. after --help or in
// the parent of a daemonized process.
type exitRequest int

func (e exitRequest) Error() string {
	return fmt.Sprintf("exit requested with code %d", int(e))
}
