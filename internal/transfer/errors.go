package transfer

import "fmt"

// ResolutionError is returned when an artifact cannot be resolved: unknown repository,
// unknown revision, or a malformed identifier.
type ResolutionError struct {
	ArtifactID string // Identifier that failed to resolve
	Reason     string // Human-readable explanation
	Err        error  // Underlying error, if any
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve artifact %s: %s", e.ArtifactID, e.Reason)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// NetworkError represents network failures and API errors including 5xx responses,
// connection timeouts, and rate limiting.
type NetworkError struct {
	Operation  string // The operation that failed (e.g., "model_info", "fetch_file")
	StatusCode int    // HTTP status code, if applicable (0 for non-HTTP errors)
	APIMessage string // Error message from the API or network layer
	Err        error  // Underlying error, if any
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network error during %s (HTTP %d): %s", e.Operation, e.StatusCode, e.APIMessage)
	}

	return fmt.Sprintf("network error during %s: %s", e.Operation, e.APIMessage)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// DirectoryError represents failures preparing the local target directory.
type DirectoryError struct {
	Path   string // The directory that caused the error
	Reason string // Human-readable explanation of the directory error
	Err    error  // Underlying error, if any
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("directory error for '%s': %s", e.Path, e.Reason)
}

func (e *DirectoryError) Unwrap() error {
	return e.Err
}

// AuthenticationError represents 401 Unauthorized and 403 Forbidden responses, typically
// a gated repository without a token.
type AuthenticationError struct {
	Operation string // The operation that required authentication
	Err       error  // Underlying error, if any
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed during %s", e.Operation)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}
