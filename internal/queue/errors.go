package queue

// ProcessingError tells the consumer loop what to do with the delivery
// after a handler fails. Requeue=true sends the message back to the queue
// (the quorum queue's delivery limit dead-letters it eventually);
// Requeue=false dead-letters it immediately.
type ProcessingError struct {
	Err     error
	Requeue bool
}

func (p ProcessingError) Error() string {
	return p.Err.Error()
}

func (p ProcessingError) Unwrap() error {
	return p.Err
}
