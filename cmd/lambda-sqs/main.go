//go:build lambda

package main

import (
	"context"
	"entitled/internal/backends"
	"entitled/internal/grants"
	"entitled/internal/pub"
	"entitled/internal/types"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// CheckoutCompleter turns a payment provider event into a stored subscription.
type CheckoutCompleter interface {
	CompleteCheckout(ctx context.Context, payload map[string]any) (string, types.PaidSubscription, error)
}

// LambdaHandler consumes checkout events from SQS. It keeps no entitlement cache;
// serving instances learn about the change from the published grant event.
type LambdaHandler struct {
	Checkout CheckoutCompleter
}

func main() {
	// Load environment variables
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	err := godotenv.Load(envFile)
	if err != nil {
		log.Info("The .env file not found.")
	}

	ctx := context.Background()

	cfg, err := types.ServiceConfigFromEnv()
	if err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	publisher, err := pub.PublisherFromEnv(ctx, cfg.GrantEventsTopicArn)
	if err != nil {
		log.Fatalf("Failed to initialize publisher: %v", err)
	}

	grantStore, err := backends.GrantBackendFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize grant store: %v", err)
	}

	handler := &LambdaHandler{
		Checkout: grants.NewService(grants.Options{
			Grants:    grantStore,
			Publisher: publisher,
			TopicArn:  cfg.GrantEventsTopicArn,
			Checkout:  cfg.Checkout,
		}),
	}

	lambda.Start(handler.HandleSQSEvent)
}

// HandleSQSEvent processes a batch; failed records are reported back so only they are retried.
func (h *LambdaHandler) HandleSQSEvent(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	log.Infof("Processing batch of %d messages", len(sqsEvent.Records))

	var batchItemFailures []events.SQSBatchItemFailure

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			log.WithError(err).Errorf("Failed to process message %s", record.MessageId)
			batchItemFailures = append(batchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
		}
	}

	return events.SQSEventResponse{
		BatchItemFailures: batchItemFailures,
	}, nil
}

func (h *LambdaHandler) processMessage(ctx context.Context, record events.SQSMessage) error {
	var payload map[string]any
	if err := json.Unmarshal([]byte(record.Body), &payload); err != nil {
		return fmt.Errorf("parse message body: %w", err)
	}

	userID, sub, err := h.Checkout.CompleteCheckout(ctx, payload)
	if err != nil {
		if errors.Is(err, types.ErrInvalidCheckout) {
			// Retrying cannot fix a payload the mapping does not understand.
			log.WithError(err).WithField("messageID", record.MessageId).Warn("Dropping invalid checkout event")
			return nil
		}
		return fmt.Errorf("complete checkout: %w", err)
	}

	log.WithFields(log.Fields{
		"userID":    userID,
		"status":    sub.Status,
		"plan":      sub.PlanType,
		"messageID": record.MessageId,
	}).Info("Checkout applied")
	return nil
}
