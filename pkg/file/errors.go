package file

import "errors"

var (
	ErrInvalidPath = errors.New("invalid path") // key escapes the storage root

	ErrFileNotFound       = errors.New("file not found")
	ErrFailedToReadFile   = errors.New("failed to read file")
	ErrFailedToWriteFile  = errors.New("failed to write file")
	ErrFailedToDeleteFile = errors.New("failed to delete file")
	ErrFailedToStatPath   = errors.New("failed to stat path")

	ErrFailedToCreateDirectory = errors.New("failed to create directory")
	ErrFailedToGetAbsolutePath = errors.New("failed to get absolute path")

	// S3-specific errors for proper error classification
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrAccessDenied       = errors.New("access denied")
	ErrRequestTimeout     = errors.New("request timed out")
	ErrServiceUnavailable = errors.New("service temporarily unavailable")

	ErrOperationTimeout  = errors.New("operation timed out")
	ErrOperationCanceled = errors.New("operation canceled")

	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrFailedToLoadConfig = errors.New("failed to load AWS config")
)
