/*
Package log provides Harbor's process-wide structured logger, built on
zerolog.

# Initialization

cmd/harbor calls Init once, in cobra.OnInitialize, from the --log-level
and --log-json flags, before any subcommand runs:

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})

JSONOutput picks between newline-delimited JSON (for log aggregation)
and a human-readable console writer (for local development).

# Component loggers

WithComponent returns a child logger tagged with a "component" field;
every package that logs (pkg/core, pkg/api, pkg/scheduler, pkg/reconciler,
pkg/resolver, pkg/proxy) calls log.WithComponent("<name>") once and logs
through the result, so every line can be filtered by subsystem.
WithShipID and WithSessionID attach the corresponding ID field for
request-scoped logging in the API and proxy layers.

# See Also

  - pkg/core for process-level lifecycle logging
  - pkg/api for per-request logging via the instrument middleware
*/
package log
