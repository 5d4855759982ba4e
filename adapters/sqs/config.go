package sqsqueue

// Config controls the SQS adapter.
type Config struct {
	// QueueURL is the fully qualified queue URL. Required.
	QueueURL string

	// Region falls back to the default AWS chain when empty.
	Region string

	// WaitTimeSeconds is the long-poll ceiling (0..20). A shorter
	// DequeueWithTimeout timeout wins for that call.
	WaitTimeSeconds int

	// VisibilityTimeout in seconds for received messages; report generation
	// can take minutes, so keep this above the worst-case job time.
	VisibilityTimeout int

	// FIFO queues need a message group; MessageGroupID defaults to the job kind.
	FIFO           bool
	MessageGroupID string

	// RequeueBackoffSeconds delays redelivery after Nack with requeue.
	RequeueBackoffSeconds int

	// DropOnNackNoRequeue deletes the message on Nack without requeue instead
	// of leaving it to the queue's redrive policy.
	DropOnNackNoRequeue bool
}

// DefaultConfig provides defaults for report jobs.
func DefaultConfig() Config {
	return Config{
		WaitTimeSeconds:   20,
		VisibilityTimeout: 300,
	}
}
