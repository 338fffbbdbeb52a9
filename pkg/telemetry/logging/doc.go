// Package logging configures the process-wide structured logger.
//
// Components log through slog.Default() with a "component" attribute;
// this package builds the default handler from configuration (level,
// format) and wraps it with secret redaction so webhook URLs, tokens,
// and other sensitive fields never reach log output verbatim.
package logging
