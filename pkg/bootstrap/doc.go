// Package bootstrap runs the workbench server's startup sequence and owns
// its shutdown.
//
// Main executes a fixed, ordered list of steps. Each step is either fatal,
// ending the process with the step's exit code, or best effort, logging its
// failure and moving on:
//
//	 1  logging                   process-wide default logger
//	 2  ignore SIGPIPE            best effort
//	 3  options                   exit 0 on --help/--version, ExitOptions on error
//	 4  daemonize, signals, umask ExitDaemonize
//	 5  R environment             ExitEnvironment
//	 6  open file limit (root)    ExitResourceLimit
//	 7  working directory         ExitWorkingDir
//	 8  crypto, cookie, proxy     ExitCrypto, ExitCookie, ExitProxy
//	 9  bind                      ExitBind
//	10  routes, add-ins, auth     ExitAddins, ExitAuth
//	11  AppArmor restriction      best effort
//	12  privilege drop (root)     ExitPrivilegeDrop
//	13  verify installation       exit 0 or ExitVerifyFailed
//	14  arm signals, run server   ExitSignalWait, ExitServerRun
//	15  wait for signals          exits through the re-raised signal
//
// Every collaborator lives on an explicit Context built by Main; there is
// no package-level server state.
package bootstrap
