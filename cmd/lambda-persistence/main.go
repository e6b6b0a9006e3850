package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/resolve"
)

var (
	dynamoClient *dynamodb.Client
	tableName    string
)

func init() {
	// Load AWS SDK config
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		panic(fmt.Sprintf("failed to load AWS config: %v", err))
	}

	// Initialize DynamoDB client
	dynamoClient = dynamodb.NewFromConfig(cfg)

	// Get table name from environment
	tableName = os.Getenv("RESOLUTION_EVENTS_TABLE")
	if tableName == "" {
		tableName = "resolution-events"
	}

	fmt.Printf("[INIT] Persistence Lambda initialized - Table: %s\n", tableName)
}

// DynamoDBRecord represents a DynamoDB record with TTL
type DynamoDBRecord struct {
	resolve.ResolutionEvent
	TTL int64 `dynamodbav:"ttl" json:"ttl"` // Auto-expire after 30 days
}

// Handler processes SQS events and writes to DynamoDB
func Handler(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	recordCount := len(sqsEvent.Records)
	fmt.Printf("[HANDLER] Processing %d SQS records\n", recordCount)

	var batchItemFailures []events.SQSBatchItemFailure
	successCount := 0

	for _, record := range sqsEvent.Records {
		// Parse SNS message from SQS record body
		var snsMessage struct {
			Message string `json:"Message"`
		}

		if err := json.Unmarshal([]byte(record.Body), &snsMessage); err != nil {
			fmt.Printf("[ERROR] Failed to parse SQS body: %v\n", err)
			batchItemFailures = append(batchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
			continue
		}

		// Parse resolution event from SNS message
		var evt resolve.ResolutionEvent
		if err := json.Unmarshal([]byte(snsMessage.Message), &evt); err != nil {
			fmt.Printf("[ERROR] Failed to parse resolution event: %v\n", err)
			batchItemFailures = append(batchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
			continue
		}

		// Create DynamoDB record with TTL
		evtRecord := DynamoDBRecord{
			ResolutionEvent: evt,
			TTL:             time.Now().Unix() + (30 * 24 * 60 * 60), // 30 days TTL
		}

		// Write to DynamoDB
		if err := writeToDynamoDB(ctx, evtRecord); err != nil {
			fmt.Printf("[ERROR] Failed to write to DynamoDB: %v - EventID: %s\n",
				err, evtRecord.EventID)
			batchItemFailures = append(batchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
			continue
		}

		successCount++
		fmt.Printf("[SUCCESS] Persisted resolution event: %s (Product: %s, Outcome: %s)\n",
			evtRecord.EventID,
			evtRecord.ProductID,
			evtRecord.Outcome,
		)
	}

	fmt.Printf("[SUMMARY] Processed %d records - Success: %d, Failed: %d\n",
		recordCount, successCount, len(batchItemFailures))

	// Return partial batch failure response
	// SQS will retry only the failed messages
	return events.SQSEventResponse{
		BatchItemFailures: batchItemFailures,
	}, nil
}

// writeToDynamoDB writes a resolution event record to DynamoDB
func writeToDynamoDB(ctx context.Context, record DynamoDBRecord) error {
	// Marshal record to DynamoDB attribute values
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	// Put item
	_, err = dynamoClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put item: %w", err)
	}

	return nil
}

func main() {
	lambda.Start(Handler)
}
