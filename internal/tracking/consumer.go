package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
	trackingsvc "github.com/ignite/engagement-tracker/internal/service/tracking"
)

// SQSReceiver is the subset of *sqs.Client the consumer uses.
type SQSReceiver interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Consumer polls the tracking queue and feeds the recorder. A message is
// deleted once handled, unless the recorder reports that nothing was written,
// in which case SQS redelivers it after the visibility timeout.
type Consumer struct {
	sqsClient SQSReceiver
	queueURL  string
	rec       Recorder
	errDelay  time.Duration
	done      chan struct{}
}

func NewConsumer(sqsClient SQSReceiver, queueURL string, rec Recorder) *Consumer {
	return &Consumer{
		sqsClient: sqsClient,
		queueURL:  queueURL,
		rec:       rec,
		errDelay:  5 * time.Second,
		done:      make(chan struct{}),
	}
}

func (c *Consumer) Start(ctx context.Context) {
	logger.Info("SQS tracking consumer started", "queue", c.queueURL)
	go c.poll(ctx)
}

func (c *Consumer) Stop() {
	close(c.done)
}

func (c *Consumer) poll(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		out, err := c.sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("SQS receive error", "err", err)
			select {
			case <-time.After(c.errDelay):
			case <-ctx.Done():
				return
			case <-c.done:
				return
			}
			continue
		}

		for _, msg := range out.Messages {
			c.HandleMessage(ctx, msg)
		}
	}
}

// HandleMessage records one queue message and reports whether it was deleted.
func (c *Consumer) HandleMessage(ctx context.Context, msg types.Message) bool {
	var evt domain.EngagementEvent
	if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &evt); err != nil {
		logger.Warn("SQS bad tracking message, discarding", "message_id", aws.ToString(msg.MessageId), "err", err)
		c.deleteMessage(ctx, msg.ReceiptHandle)
		return true
	}

	outcome, err := c.rec.Record(ctx, evt)
	if errors.Is(err, trackingsvc.ErrPersistence) {
		logger.Warn("tracking event left on queue for redelivery", "message_id", aws.ToString(msg.MessageId), "err", err)
		return false
	}
	if err != nil {
		logger.Warn("tracking event rejected, discarding", "message_id", aws.ToString(msg.MessageId), "err", err)
	} else {
		logger.Debug("tracking event processed", "kind", string(evt.Kind), "outcome", string(outcome))
	}

	c.deleteMessage(ctx, msg.ReceiptHandle)
	return true
}

func (c *Consumer) deleteMessage(ctx context.Context, handle *string) {
	_, err := c.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	})
	if err != nil {
		logger.Error("SQS delete failed", "err", err)
	}
}
