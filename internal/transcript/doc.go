// Package transcript implements hypothesis reconciliation for incremental
// transcription: timestamped tokens, LocalAgreement commit, context prompt
// construction, and hallucination screening.
package transcript
