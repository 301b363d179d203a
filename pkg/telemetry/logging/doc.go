// Package logging configures structured logging on top of log/slog.
//
// Loggers built here add request_id, user_id and the active trace and span
// ids from the context to every record logged with a *Context method, and
// mask credentials (sk- keys, bearer tokens, values under keys such as
// api_key or authorization).
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json", Redact: true})
//	slog.SetDefault(logger.Logger)
//
//	ctx = logging.WithRequestID(ctx, "req-123")
//	slog.InfoContext(ctx, "admission denied", "key", key)
//
// The level can be changed at runtime with SetLevel, which the service uses
// on configuration reload.
package logging
