package errors

// IsScanFailure reports whether err is a failed nightly scan.
func IsScanFailure(err error) bool {
	return HasCode(err, ErrCodeScanFailure)
}

// IsRankingFailure reports whether err is a ranking failure.
func IsRankingFailure(err error) bool {
	return HasCode(err, ErrCodeRankingFailure)
}

// IsEntryWindowClosed reports whether an entry was attempted after the window closed.
func IsEntryWindowClosed(err error) bool {
	return HasCode(err, ErrCodeEntryWindowClosed)
}

// IsOrderSubmission reports whether an order could not be submitted.
func IsOrderSubmission(err error) bool {
	return HasCode(err, ErrCodeOrderSubmission)
}

// IsFillTimeout reports whether an order was not filled in time.
func IsFillTimeout(err error) bool {
	return HasCode(err, ErrCodeFillTimeout)
}

func IsPositionExists(err error) bool {
	return HasCode(err, ErrCodePositionExists)
}

func IsReentryBlocked(err error) bool {
	return HasCode(err, ErrCodeReentryBlocked)
}

func IsRiskRejected(err error) bool {
	return HasCode(err, ErrCodeRiskRejected)
}

// IsArtifactNotFound reports whether a persisted artifact is missing.
func IsArtifactNotFound(err error) bool {
	return HasCode(err, ErrCodeArtifactNotFound)
}
