// Package logging provides structured logging with secret redaction.
//
// # Overview
//
// The logging package wraps Go's standard log/slog package to provide:
//   - Structured logging in JSON or text format
//   - Redaction of cookies, passwords, and session secrets
//   - Context-aware logging with request IDs, users, and trace IDs
//   - An adjustable level shared by every logger derived from the default
//
// # Usage
//
//	logger, err := logging.Install(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	    Redact: true,
//	})
//
//	logger.Info("request proxied",
//	    "user", "alice",
//	    "cookie", "user-id=...", // redacted
//	)
//
//	// Context fields are added automatically by the handler
//	ctx = logging.WithRequestID(ctx, "req-123")
//	slog.InfoContext(ctx, "dispatching") // includes request_id
//
// # Redaction
//
// Attributes whose keys name a credential (cookie, password, secret, token,
// authorization) are replaced with "***". String values are scanned for
// password assignments, bearer tokens, and identity cookie values.
package logging
