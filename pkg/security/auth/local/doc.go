// Package local implements the built-in password authentication provider.
//
// The provider is installed only when no other provider registered during
// startup. Credentials come from a users file with one entry per line:
//
//	alice:argon2id$1$65536$4$<salt>$<hash>
//
// Blank lines and lines starting with '#' are ignored. Hashes are produced
// by HashPassword (exposed on the command line as "workbench hash-password").
// When watching is enabled the file is reloaded after it changes on disk.
package local
