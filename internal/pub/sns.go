// Package pub delivers grant events to other processes.
package pub

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	log "github.com/sirupsen/logrus"
)

const grantEventSubject = "entitled.grant_event"

type SNSPublisher struct{ cli *sns.Client }

func NewSNS(c *sns.Client) *SNSPublisher { return &SNSPublisher{cli: c} }

func (s *SNSPublisher) PublishRaw(ctx context.Context, arn string, payload []byte) error {
	_, err := s.cli.Publish(ctx, &sns.PublishInput{
		TopicArn: &arn,
		Message:  aws.String(string(payload)),
		Subject:  aws.String(grantEventSubject),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"content-type": {DataType: aws.String("String"), StringValue: aws.String("application/json")},
		},
	})
	return err
}

// LogPublisher writes events to the log instead of a topic, for single-instance
// deployments and local development.
type LogPublisher struct{}

func (LogPublisher) PublishRaw(ctx context.Context, arn string, payload []byte) error {
	log.WithFields(log.Fields{"arn": arn, "payload": string(payload)}).Debug("grant event")
	return nil
}
