package events

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"datamarket/pkg/domain"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type messageSender interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSConfig locates the queue events are sent to.
type SQSConfig struct {
	QueueURL string `yaml:"queue_url"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// SQSPublisher sends one message per event. FIFO queues group messages by
// record ID and deduplicate on the event ID.
type SQSPublisher struct {
	client   messageSender
	queueURL string
	fifo     bool
}

// NewSQSPublisher loads the default AWS configuration and builds a client.
func NewSQSPublisher(ctx context.Context, cfg SQSConfig) (*SQSPublisher, error) {
	if cfg.QueueURL == "" {
		return nil, fmt.Errorf("sqs publisher requires a queue url")
	}
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newSQSPublisher(client, cfg.QueueURL), nil
}

func newSQSPublisher(client messageSender, queueURL string) *SQSPublisher {
	return &SQSPublisher{client: client, queueURL: queueURL, fifo: strings.HasSuffix(queueURL, ".fifo")}
}

// Publish implements Publisher.
func (p *SQSPublisher) Publish(ctx context.Context, event domain.Event) error {
	payload, err := Encode(event)
	if err != nil {
		return err
	}
	in := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"type": {DataType: aws.String("String"), StringValue: aws.String(string(event.Type))},
			"sequence": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.FormatUint(event.Sequence, 10)),
			},
		},
	}
	if p.fifo {
		in.MessageGroupId = aws.String(event.RecordID)
		in.MessageDeduplicationId = aws.String(event.ID)
	}
	if _, err := p.client.SendMessage(ctx, in); err != nil {
		return fmt.Errorf("send event %d: %w", event.Sequence, err)
	}
	return nil
}
