package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Publisher abstracts the SNS Publish call for testability.
type Publisher interface {
	Publish(ctx context.Context, topicARN, subject, message string) (messageID string, err error)
}

// SNS publishes run events to a topic.
type SNS struct {
	publisher Publisher
	topic     string
}

func NewSNS(publisher Publisher, topicARN string) *SNS {
	return &SNS{publisher: publisher, topic: topicARN}
}

func (s *SNS) Notify(ctx context.Context, e Event) error {
	if _, err := s.publisher.Publish(ctx, s.topic, e.Subject(), e.Body()); err != nil {
		return fmt.Errorf("sns: publish: %w", err)
	}
	return nil
}

// snsPublisher wraps the AWS SNS client.
type snsPublisher struct {
	client *sns.Client
}

// NewSNSPublisher loads the default AWS configuration for region.
func NewSNSPublisher(ctx context.Context, region string) (Publisher, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &snsPublisher{client: sns.NewFromConfig(cfg)}, nil
}

func (a *snsPublisher) Publish(ctx context.Context, topicARN, subject, message string) (string, error) {
	out, err := a.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.MessageId), nil
}
