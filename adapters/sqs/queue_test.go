package sqsqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KamdynS/sentiant/queue"
)

// fakeSQS keeps one FIFO list of bodies and records receipt operations.
type fakeSQS struct {
	mu         sync.Mutex
	bodies     []string
	receives   int
	deleted    []string
	visibility map[string]int32
	lastWait   int32
	lastSend   *sqs.SendMessageInput
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSend = in
	f.bodies = append(f.bodies, aws.ToString(in.MessageBody))
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastWait = in.WaitTimeSeconds
	if len(f.bodies) == 0 {
		return &sqs.ReceiveMessageOutput{}, nil
	}
	f.receives++
	body := f.bodies[0]
	return &sqs.ReceiveMessageOutput{Messages: []sqstypes.Message{{
		Body:          aws.String(body),
		ReceiptHandle: aws.String("rh-1"),
		Attributes: map[string]string{
			string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount): "3",
		},
	}}}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	f.bodies = f.bodies[1:]
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) ChangeMessageVisibility(_ context.Context, in *sqs.ChangeMessageVisibilityInput, _ ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.visibility == nil {
		f.visibility = map[string]int32{}
	}
	f.visibility[aws.ToString(in.ReceiptHandle)] = in.VisibilityTimeout
	return &sqs.ChangeMessageVisibilityOutput{}, nil
}

func (f *fakeSQS) GetQueueAttributes(context.Context, *sqs.GetQueueAttributesInput, ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &sqs.GetQueueAttributesOutput{Attributes: map[string]string{
		string(sqstypes.QueueAttributeNameApproximateNumberOfMessages): "7",
	}}, nil
}

func newJob(t *testing.T) *queue.Job {
	t.Helper()
	job, err := queue.NewJob(queue.KindFullReport, map[string]string{"topic": "rust"})
	require.NoError(t, err)
	return job
}

func TestQueue_RoundTripUsesReceiveCountAndDeletes(t *testing.T) {
	fake := &fakeSQS{}
	q := NewFromClient(fake, Config{QueueURL: "https://sqs.local/q"})
	ctx := context.Background()
	job := newJob(t)

	require.NoError(t, q.Enqueue(ctx, queue.DefaultName, job))
	got, err := q.DequeueWithTimeout(ctx, queue.DefaultName, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, 3, got.Attempts)
	assert.EqualValues(t, 2, fake.lastWait)

	require.NoError(t, q.Ack(ctx, queue.DefaultName, got.ID))
	assert.Equal(t, []string{"rh-1"}, fake.deleted)
	assert.Error(t, q.Ack(ctx, queue.DefaultName, got.ID), "handle is consumed by the first ack")
}

func TestQueue_EmptyReceive(t *testing.T) {
	q := NewFromClient(&fakeSQS{}, Config{QueueURL: "u"})
	_, err := q.DequeueWithTimeout(context.Background(), "", 0)
	assert.True(t, errors.Is(err, queue.ErrEmpty))
}

func TestQueue_NackRequeueChangesVisibility(t *testing.T) {
	fake := &fakeSQS{}
	q := NewFromClient(fake, Config{QueueURL: "u", RequeueBackoffSeconds: 15})
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "", newJob(t)))
	got, err := q.DequeueWithTimeout(ctx, "", time.Second)
	require.NoError(t, err)

	require.NoError(t, q.Nack(ctx, "", got.ID, true))
	assert.EqualValues(t, 15, fake.visibility["rh-1"])
	assert.Empty(t, fake.deleted)
}

func TestQueue_NackDropDeletes(t *testing.T) {
	fake := &fakeSQS{}
	q := NewFromClient(fake, Config{QueueURL: "u", DropOnNackNoRequeue: true})
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "", newJob(t)))
	got, err := q.DequeueWithTimeout(ctx, "", time.Second)
	require.NoError(t, err)

	require.NoError(t, q.Nack(ctx, "", got.ID, false))
	assert.Equal(t, []string{"rh-1"}, fake.deleted)
}

func TestQueue_FIFOSetsGroupAndDedup(t *testing.T) {
	fake := &fakeSQS{}
	q := NewFromClient(fake, Config{QueueURL: "u.fifo", FIFO: true})
	job := newJob(t)
	require.NoError(t, q.Enqueue(context.Background(), "", job))
	assert.Equal(t, string(queue.KindFullReport), aws.ToString(fake.lastSend.MessageGroupId))
	assert.Equal(t, job.ID, aws.ToString(fake.lastSend.MessageDeduplicationId))
}

func TestQueue_Len(t *testing.T) {
	q := NewFromClient(&fakeSQS{}, Config{QueueURL: "u"})
	n, err := q.Len(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestNew_RequiresQueueURL(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}
