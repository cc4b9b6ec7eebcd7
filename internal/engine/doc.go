// Package engine defines the speech-to-text engine collaborator contract
// and an HTTP client implementation for whisper-server style endpoints.
package engine
