// Package detect wraps the injection analysis library for service use.
// It layers operational concerns on top of the pure analyzers: scan
// modes, engine selection, input truncation, log masking, audit events
// and metrics. The analyzers themselves never block and never log;
// everything policy-shaped lives here.
//
// The package exposes three engines. The fingerprint engine runs the
// tokenizing analyzers (SQL fingerprinting plus markup scanning) and is
// the default. The heuristic engine is a regex pattern set for
// environments that want cheap, explainable matching. The noop engine
// backs mode "off".
//
// Deployments can extend the heuristic pattern set with custom
// signatures via the config file. Custom expressions pass a safety
// gate (RE2 syntax, length and capture-group limits, a probe run)
// before they reach the request path; ValidatePattern and TryPattern
// expose the same gate for tuning.
//
// An analyzer verdict of injection.ResultError means the input broke a
// parser invariant. Whether that blocks a request is policy:
// fail-closed treats it like a detection, fail-open waves it through.
// The default is fail-closed.
package detect
