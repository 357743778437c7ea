// Package sanitizer implements pattern-based redaction of personally
// identifiable strings. It is invariant-critical: every window title or
// OCR string that crosses the process boundary — into a model prompt, into
// a persisted summary or tag, into a log line — must pass through
// clean_text first. The package is pure: no I/O, no package-level state.
package sanitizer
