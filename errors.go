package diarysync

import (
	"diarysync/api"
	"diarysync/auth"
	"diarysync/internal/retry"
	"diarysync/internal/storage"
	"diarysync/model"
	"diarysync/repository"
	"diarysync/transfer"
)

// Error handling types exported for library users.
//
// All error types support the standard error handling patterns:
//
// Using errors.Is() for sentinel errors:
//
//	if errors.Is(err, diarysync.ErrNotFound) {
//		fmt.Println("Video not found")
//	}
//
// Using errors.As() for wrapped errors:
//
//	var completion *diarysync.CompletionError
//	if errors.As(err, &completion) {
//		fmt.Printf("Upload %s arrived but was not confirmed: %v\n", completion.JobID, completion.Err)
//	}

// Type aliases for convenient error handling.
type (
	// APIError is a non-2xx answer from the backend.
	APIError = api.APIError
	// CompletionError reports a transferred upload whose completion call failed.
	CompletionError = transfer.CompletionError
	// RetryableError wraps the last error after every upload attempt failed.
	RetryableError = retry.RetryableError
	// StorageError wraps errors of local file operations.
	StorageError = storage.StorageError
)

// Sentinel errors exported from sub-packages.
var (
	// ErrUnauthorized matches a 401 that survived the token refresh.
	ErrUnauthorized = api.ErrUnauthorized
	// ErrNotFound matches a 404 from the backend.
	ErrNotFound = api.ErrNotFound
	// ErrCircuitOpen indicates the backend was skipped after repeated failures.
	ErrCircuitOpen = api.ErrCircuitOpen
	// ErrNoCredentials indicates nobody is signed in.
	ErrNoCredentials = auth.ErrNoCredentials
	// ErrSuperseded is the cancellation cause of a replaced upload.
	ErrSuperseded = transfer.ErrSuperseded
	// ErrUploadCanceled is the cancellation cause of CancelUpload.
	ErrUploadCanceled = transfer.ErrCanceled
	// ErrNoObjectKey indicates a compilation has no rendered file yet.
	ErrNoObjectKey = repository.ErrNoObjectKey
	// ErrUnknownStatus indicates the server sent a status this client does not know.
	ErrUnknownStatus = model.ErrUnknownStatus

	// Storage errors
	// ErrStorageCorrupt indicates a local file could not be decoded.
	ErrStorageCorrupt = storage.ErrStorageCorrupt
	// ErrLockTimeout indicates another process holds the data dir.
	ErrLockTimeout = storage.ErrLockTimeout
)

// IsTransient reports whether err is a connectivity failure, the kind that
// permits a cached fallback or a later retry.
func IsTransient(err error) bool {
	return api.IsTransient(err)
}
