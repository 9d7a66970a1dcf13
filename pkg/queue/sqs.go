package queue

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSAPI is the subset of the SQS client used by this package.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSQueue implements Sender and batch receive over one SQS queue.
// Messages that are not deleted after a batch stay invisible until the
// visibility timeout expires and are then redelivered, which provides the
// at-least-once partial-batch-failure behavior.
type SQSQueue struct {
	client   SQSAPI
	queueURL string
	maxBatch int32
	waitSecs int32
}

// SQSOption configures an SQSQueue.
type SQSOption func(*SQSQueue)

// WithMaxBatch sets the maximum batch size per receive (1-10).
func WithMaxBatch(n int32) SQSOption {
	return func(q *SQSQueue) {
		if n >= 1 && n <= 10 {
			q.maxBatch = n
		}
	}
}

// WithWaitSeconds sets the long-poll wait time per receive.
func WithWaitSeconds(n int32) SQSOption {
	return func(q *SQSQueue) {
		if n >= 0 && n <= 20 {
			q.waitSecs = n
		}
	}
}

// NewSQSQueue creates a queue client for one queue URL.
func NewSQSQueue(client SQSAPI, queueURL string, opts ...SQSOption) *SQSQueue {
	if client == nil {
		panic("queue: SQSAPI is required")
	}
	if queueURL == "" {
		panic("queue: queue URL is required")
	}

	q := &SQSQueue{
		client:   client,
		queueURL: queueURL,
		maxBatch: 10,
		waitSecs: 10,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *SQSQueue) Send(ctx context.Context, body []byte) error {
	if len(body) == 0 {
		return ErrEmptyBody
	}

	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return errors.Join(ErrFailedToSend, err)
	}
	return nil
}

// Receive long-polls for one batch of messages.
func (q *SQSQueue) Receive(ctx context.Context) ([]Message, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: q.maxBatch,
		WaitTimeSeconds:     q.waitSecs,
	})
	if err != nil {
		return nil, errors.Join(ErrFailedToReceive, err)
	}

	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, Message{
			ID:      aws.ToString(m.MessageId),
			Body:    []byte(aws.ToString(m.Body)),
			Receipt: aws.ToString(m.ReceiptHandle),
		})
	}
	return msgs, nil
}

// Resolve deletes the messages that succeeded and leaves failed ones to be
// redelivered after the visibility timeout.
func (q *SQSQueue) Resolve(ctx context.Context, msgs []Message, result *BatchResult) error {
	var errs []error
	for _, msg := range msgs {
		if result != nil && result.Failed(msg.ID) {
			continue
		}
		if _, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(q.queueURL),
			ReceiptHandle: aws.String(msg.Receipt),
		}); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrFailedToResolve}, errs...)...)
	}
	return nil
}
