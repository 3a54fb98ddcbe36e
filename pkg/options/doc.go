// Package options parses the workbench-server command line and loads the
// configuration it points at.
//
// Parsing yields a ProgramStatus. Help and version output, and utility
// subcommands such as hash-password, finish the program with exit code 0;
// a malformed command line or configuration finishes it with
// ExitInvalidOptions. Only ProgramStatus.Run() lets startup continue.
//
// Flags given on the command line take precedence over both the
// configuration file and WORKBENCH_ environment overrides.
package options
