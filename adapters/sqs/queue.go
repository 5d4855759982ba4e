// Package sqsqueue implements queue.Queue on AWS SQS.
package sqsqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/KamdynS/sentiant/queue"
)

// API is the subset of the SQS client the adapter uses.
type API interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, in *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
	GetQueueAttributes(ctx context.Context, in *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

var _ queue.Queue = (*Queue)(nil)

// Queue implements queue.Queue backed by one SQS queue. The queueName
// argument of each method is ignored; QueueURL decides the destination.
type Queue struct {
	client  API
	cfg     Config
	mu      sync.Mutex
	handles map[string]string // job id -> receipt handle
}

// New loads the default AWS config chain and creates the adapter.
func New(ctx context.Context, cfg Config) (*Queue, error) {
	if cfg.QueueURL == "" {
		return nil, fmt.Errorf("sqs: QueueURL is required")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awscfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewFromClient(sqs.NewFromConfig(awscfg), cfg), nil
}

// NewFromClient builds the adapter over an existing client.
func NewFromClient(client API, cfg Config) *Queue {
	def := DefaultConfig()
	if cfg.WaitTimeSeconds == 0 {
		cfg.WaitTimeSeconds = def.WaitTimeSeconds
	}
	if cfg.VisibilityTimeout == 0 {
		cfg.VisibilityTimeout = def.VisibilityTimeout
	}
	return &Queue{client: client, cfg: cfg, handles: make(map[string]string)}
}

// Enqueue sends the job as a JSON message body.
func (q *Queue) Enqueue(ctx context.Context, _ string, job *queue.Job) error {
	if job == nil {
		return fmt.Errorf("enqueue: nil job")
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	in := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.cfg.QueueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"Kind": {DataType: aws.String("String"), StringValue: aws.String(string(job.Kind))},
		},
	}
	if q.cfg.FIFO {
		group := q.cfg.MessageGroupID
		if group == "" {
			group = string(job.Kind)
		}
		in.MessageGroupId = aws.String(group)
		in.MessageDeduplicationId = aws.String(job.ID)
	}
	if _, err := q.client.SendMessage(ctx, in); err != nil {
		return fmt.Errorf("sqs SendMessage: %w", err)
	}
	return nil
}

// DequeueWithTimeout long-polls for a single message.
func (q *Queue) DequeueWithTimeout(ctx context.Context, _ string, timeout time.Duration) (*queue.Job, error) {
	wait := q.cfg.WaitTimeSeconds
	if timeout > 0 && int(timeout/time.Second) < wait {
		wait = int(timeout / time.Second)
	}
	wait = min(max(wait, 0), 20)

	in := &sqs.ReceiveMessageInput{
		QueueUrl: aws.String(q.cfg.QueueURL),
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
			sqstypes.MessageSystemAttributeNameApproximateReceiveCount,
		},
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     int32(wait),
	}
	if q.cfg.VisibilityTimeout > 0 {
		in.VisibilityTimeout = int32(q.cfg.VisibilityTimeout)
	}
	out, err := q.client.ReceiveMessage(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("sqs ReceiveMessage: %w", err)
	}
	if len(out.Messages) == 0 || out.Messages[0].Body == nil {
		return nil, queue.ErrEmpty
	}
	msg := out.Messages[0]

	var job queue.Job
	if err := json.Unmarshal([]byte(*msg.Body), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job body: %w", err)
	}
	// SQS tracks deliveries itself; prefer its count.
	if rc, ok := msg.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
		if n, convErr := strconv.Atoi(rc); convErr == nil && n > 0 {
			job.Attempts = n
		}
	}
	if job.Attempts <= 0 {
		job.Attempts = 1
	}
	if msg.ReceiptHandle != nil {
		q.mu.Lock()
		q.handles[job.ID] = *msg.ReceiptHandle
		q.mu.Unlock()
	}
	return &job, nil
}

// Ack deletes the message.
func (q *Queue) Ack(ctx context.Context, _ string, jobID string) error {
	receipt, ok := q.takeHandle(jobID)
	if !ok {
		return fmt.Errorf("ack: no receipt handle for job %s", jobID)
	}
	if _, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.cfg.QueueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		return fmt.Errorf("sqs DeleteMessage: %w", err)
	}
	return nil
}

// Nack makes the message visible again, or deletes it when configured to
// drop non-requeued jobs.
func (q *Queue) Nack(ctx context.Context, _ string, jobID string, requeue bool) error {
	receipt, ok := q.takeHandle(jobID)
	if !ok {
		return fmt.Errorf("nack: no receipt handle for job %s", jobID)
	}
	if !requeue && q.cfg.DropOnNackNoRequeue {
		if _, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(q.cfg.QueueURL),
			ReceiptHandle: aws.String(receipt),
		}); err != nil {
			return fmt.Errorf("sqs DeleteMessage: %w", err)
		}
		return nil
	}
	vis := int32(0)
	if requeue {
		vis = int32(max(q.cfg.RequeueBackoffSeconds, 0))
	}
	if _, err := q.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.cfg.QueueURL),
		ReceiptHandle:     aws.String(receipt),
		VisibilityTimeout: vis,
	}); err != nil {
		return fmt.Errorf("sqs ChangeMessageVisibility: %w", err)
	}
	return nil
}

// Len returns ApproximateNumberOfMessages.
func (q *Queue) Len(ctx context.Context, _ string) (int, error) {
	out, err := q.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(q.cfg.QueueURL),
		AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameApproximateNumberOfMessages},
	})
	if err != nil {
		return 0, fmt.Errorf("sqs GetQueueAttributes: %w", err)
	}
	n, err := strconv.Atoi(out.Attributes[string(sqstypes.QueueAttributeNameApproximateNumberOfMessages)])
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (q *Queue) Close() error { return nil }

func (q *Queue) takeHandle(jobID string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	h, ok := q.handles[jobID]
	delete(q.handles, jobID)
	return h, ok
}
