package saga

// decision is the retry/compensation policy's verdict on a failed or
// partial attempt.
type decision int

const (
	// decisionRetry republishes the pending message with retryCount+1.
	decisionRetry decision = iota
	// decisionFail emits the terminal failure message, triggering
	// compensation.
	decisionFail
)

// decideNext applies the bounded retry policy: PENDING(0) -> PENDING(1)
// -> ... -> PENDING(maxRetry) -> FAILURE. A Failed message therefore
// always carries retryCount == maxRetry.
func decideNext(retryCount, maxRetry int) decision {
	if retryCount < maxRetry {
		return decisionRetry
	}
	return decisionFail
}
