// Package system wraps the process-level operations the server performs at
// startup: signal dispositions, daemonizing, umask, resource limits, the
// working directory, privilege dropping and AppArmor confinement.
package system
