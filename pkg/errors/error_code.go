package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidType          ErrorCode = 102
	ErrCodeInvalidOrder         ErrorCode = 105
	ErrCodeInsufficientData     ErrorCode = 106
	ErrCodeInvalidPeriod        ErrorCode = 108
	ErrCodeMissingParameter     ErrorCode = 109
	ErrCodeInvalidVersion       ErrorCode = 110

	// Data/Resource errors (200-299)
	ErrCodeDataNotFound          ErrorCode = 200
	ErrCodeDataSourceUnavailable ErrorCode = 201
	ErrCodeQueryFailed           ErrorCode = 202
	ErrCodeArtifactNotFound      ErrorCode = 206
	ErrCodeArtifactWriteFailed   ErrorCode = 207
	ErrCodeArtifactCorrupt       ErrorCode = 208

	// Indicator errors (300-399)
	ErrCodeIndicatorNotFound      ErrorCode = 300
	ErrCodeIndicatorAlreadyExists ErrorCode = 301
	ErrCodeIndicatorCalculation   ErrorCode = 302

	// Strategy errors (400-499)
	ErrCodeStrategyConfigError  ErrorCode = 401
	ErrCodeStrategyRuntimeError ErrorCode = 402
	ErrCodeUnsupportedStrategy  ErrorCode = 403
	ErrCodeVersionMismatch      ErrorCode = 404

	// Trading errors (500-599)
	ErrCodeOrderFailed           ErrorCode = 500
	ErrCodePositionNotFound      ErrorCode = 501
	ErrCodeMarketDataMissing     ErrorCode = 502
	ErrCodeOrderSubmission       ErrorCode = 503
	ErrCodeFillTimeout           ErrorCode = 504
	ErrCodeEntryWindowClosed     ErrorCode = 505
	ErrCodePositionExists        ErrorCode = 506
	ErrCodeReentryBlocked        ErrorCode = 507
	ErrCodeRiskRejected          ErrorCode = 508
	ErrCodeMonitorNotRunning     ErrorCode = 509
	ErrCodeOrderRejected         ErrorCode = 510
	ErrCodeMonitorRunning        ErrorCode = 511

	// Batch pipeline errors (600-699)
	ErrCodeScanFailure         ErrorCode = 600
	ErrCodePartialFetchFailure ErrorCode = 601
	ErrCodeRankingFailure      ErrorCode = 602
	ErrCodeGapFilterFailure    ErrorCode = 603
	ErrCodeStageSkipped        ErrorCode = 604

	// Market data errors (700-799)
	ErrCodeMarketDataFetchFailed ErrorCode = 700
	ErrCodeMarketDataParseFailed ErrorCode = 702
	ErrCodeInvalidInterval       ErrorCode = 703
	ErrCodeInvalidProvider       ErrorCode = 704
	ErrCodeStreamFailed          ErrorCode = 705

	// Scheduler errors (800-899)
	ErrCodeCallbackFailed    ErrorCode = 800
	ErrCodeTaskAlreadyExists ErrorCode = 801
	ErrCodeSchedulerRunning  ErrorCode = 802
)
