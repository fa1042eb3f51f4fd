// Package errors provides structured error handling for Quarry.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO and storage errors
//   - 3XX: Retrieval/rerank source errors
//   - 4XX: Validation errors
//   - 5XX: Ingestion phase and internal errors
//   - 6XX: Capacity errors
//   - 7XX: Cancellation
package errors

// Category classifies errors so callers can react without matching codes.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file, disk, and store I/O errors.
	CategoryIO Category = "IO"
	// CategorySource indicates a retrieval or rerank backend being
	// unavailable. Queries degrade rather than abort on these.
	CategorySource Category = "SOURCE"
	// CategoryValidation indicates input validation errors, rejected
	// synchronously before any work is queued.
	CategoryValidation Category = "VALIDATION"
	// CategoryPhase indicates a terminal failure inside an ingestion
	// phase (parse, chunk, embed, store).
	CategoryPhase Category = "PHASE"
	// CategoryCapacity indicates the ingestion queue is full. Callers
	// should back off and resubmit.
	CategoryCapacity Category = "CAPACITY"
	// CategoryCancelled indicates a caller-initiated abort, distinct
	// from genuine failure.
	CategoryCancelled Category = "CANCELLED"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but process can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileNotFound = "ERR_201_FILE_NOT_FOUND"
	ErrCodeStoreFailed  = "ERR_202_STORE_FAILED"
	ErrCodeIndexLocked  = "ERR_203_INDEX_LOCKED"
	ErrCodeCorruptIndex = "ERR_204_CORRUPT_INDEX"

	// Source errors (300-399)
	ErrCodeSourceTimeout     = "ERR_301_SOURCE_TIMEOUT"
	ErrCodeSourceUnavailable = "ERR_302_SOURCE_UNAVAILABLE"
	ErrCodeRerankUnavailable = "ERR_303_RERANK_UNAVAILABLE"
	ErrCodeEmbedUnavailable  = "ERR_304_EMBED_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeEmptyDocument     = "ERR_402_EMPTY_DOCUMENT"
	ErrCodeInvalidQuery      = "ERR_403_INVALID_QUERY"
	ErrCodeDimensionMismatch = "ERR_404_DIMENSION_MISMATCH"

	// Phase and internal errors (500-599)
	ErrCodeInternal    = "ERR_501_INTERNAL"
	ErrCodePhaseFailed = "ERR_502_PHASE_FAILED"

	// Capacity errors (600-699)
	ErrCodeQueueFull = "ERR_601_QUEUE_FULL"

	// Cancellation (700-799)
	ErrCodeCancelled = "ERR_701_CANCELLED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract the leading digit (e.g., '4' from "ERR_401_INVALID_INPUT")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategorySource
	case '4':
		return CategoryValidation
	case '5':
		return CategoryPhase
	case '6':
		return CategoryCapacity
	case '7':
		return CategoryCancelled
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Queue-full is retryable by contract: it is backpressure, not failure.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeQueueFull,
		ErrCodeSourceTimeout,
		ErrCodeSourceUnavailable,
		ErrCodeRerankUnavailable,
		ErrCodeEmbedUnavailable:
		return true
	default:
		return false
	}
}
