package pub

import (
	"context"
	"entitled/internal/ports"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

const SNSEndpointKey = "SNS_ENDPOINT"

// SNSClientFromEnv loads the default AWS config. When SNS_ENDPOINT is set the
// client talks to that endpoint with static test credentials (local mocks only).
func SNSClientFromEnv(ctx context.Context) (*sns.Client, error) {
	var snsEndpoint *string
	if se := os.Getenv(SNSEndpointKey); se != "" {
		snsEndpoint = aws.String(se)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}

	return sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if snsEndpoint != nil {
			o.BaseEndpoint = snsEndpoint
			if o.Region == "" {
				o.Region = "us-east-1"
			}
			o.Credentials = credentials.NewStaticCredentialsProvider("test", "test", "")
		}
	}), nil
}

// PublisherFromEnv returns an SNS publisher when topicArn is set, otherwise a
// LogPublisher.
func PublisherFromEnv(ctx context.Context, topicArn string) (ports.Publisher, error) {
	if topicArn == "" {
		return LogPublisher{}, nil
	}
	cli, err := SNSClientFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	return NewSNS(cli), nil
}
