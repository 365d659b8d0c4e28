package pub

import (
	"context"
	"entitled/internal/ports"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishersSatisfyPort(t *testing.T) {
	var _ ports.Publisher = (*SNSPublisher)(nil)
	var p ports.Publisher = LogPublisher{}
	assert.NoError(t, p.PublishRaw(context.Background(), "", []byte(`{"user_id":"u1"}`)))
}

func TestPublisherFromEnvWithoutTopic(t *testing.T) {
	p, err := PublisherFromEnv(context.Background(), "")
	assert.NoError(t, err)
	assert.IsType(t, LogPublisher{}, p)
}
