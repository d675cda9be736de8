package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the subset of the SQS client used for notices.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// NewSQSClient builds an SQS client from the default credential chain.
func NewSQSClient(ctx context.Context, region string) (*sqs.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return sqs.NewFromConfig(awsCfg), nil
}

// SQSNotifier publishes notices as JSON to a queue consumed by the
// ticketing integration.
type SQSNotifier struct {
	client   SQSAPI
	queueURL string
}

// NewSQSNotifier creates an SQS notifier.
func NewSQSNotifier(client SQSAPI, queueURL string) *SQSNotifier {
	return &SQSNotifier{client: client, queueURL: queueURL}
}

// SendEscalationNotice implements Notifier.
func (p *SQSNotifier) SendEscalationNotice(ctx context.Context, n Notice) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"conversation_id": {DataType: aws.String("String"), StringValue: aws.String(n.Key())},
			"reason":          {DataType: aws.String("String"), StringValue: aws.String(n.Summary.Reason)},
		},
	})
	if err != nil {
		return fmt.Errorf("sqs send: %w", err)
	}
	return nil
}
