package tracking

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/metrics"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
)

// SQSSender is the subset of *sqs.Client the publisher uses.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Publisher is an EventSink that forwards events to an SQS queue for the
// Consumer to record. Sends are fire-and-forget.
type Publisher struct {
	client   SQSSender
	queueURL string
	timeout  time.Duration
	wg       sync.WaitGroup
}

func NewPublisher(client SQSSender, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL, timeout: 5 * time.Second}
}

func (p *Publisher) Submit(evt domain.EngagementEvent) {
	body, err := json.Marshal(evt)
	if err != nil {
		metrics.SinkDropped.WithLabelValues("sqs", "marshal").Inc()
		logger.Error("marshal tracking event", "err", err)
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		_, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(p.queueURL),
			MessageBody: aws.String(string(body)),
		})
		if err != nil {
			metrics.SinkDropped.WithLabelValues("sqs", "send_failed").Inc()
			logger.Error("publishing tracking event to SQS", "kind", string(evt.Kind), "err", err)
		}
	}()
}

// Close waits for in-flight sends.
func (p *Publisher) Close() {
	p.wg.Wait()
}
