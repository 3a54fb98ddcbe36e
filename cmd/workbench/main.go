// Workbench server is the HTTP front end of the workbench. It authenticates
// browser requests, serves the application shell and documentation, and
// proxies per-user requests to launched session processes.
//
// Usage:
//
//	# Start with the default configuration file
//	workbench-server
//
//	# Start with a custom configuration file, listening on port 8080
//	workbench-server --config /path/to/workbench.yaml --www-port 8080
//
//	# Check that sessions can be launched, then exit
//	workbench-server --verify-installation
//
//	# Hash a password for the users file
//	echo -n secret | workbench-server hash-password
//
// Exit codes identify the startup step that failed; see package bootstrap.
package main

import (
	"os"

	"mercator-hq/workbench/pkg/bootstrap"
)

func main() {
	os.Exit(bootstrap.Main(os.Args[1:]))
}
