// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, hot reload, runtime metrics and debug introspection for the
// broker.
//
// Provides:
//   - TOML configuration with defaults and validation
//   - A snapshot store whose reload hooks apply changes in place
//   - A metrics registry for counters and gauges
//   - Named debug probes dumped on demand
package control
