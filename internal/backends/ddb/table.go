package ddb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbTypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	SUser  = "USER"
	SPromo = "PROMO"

	SKSubscription = "SUB"
	SKTrial        = "TRIAL"
	SKTemporary    = "TEMP"
	SKAdmin        = "ADMIN"
	SKProfile      = "PROFILE"
)

func pkUser(id string) string    { return fmt.Sprintf("%s#%s", SUser, id) }
func pkPromo(code string) string { return fmt.Sprintf("%s#%s", SPromo, code) }

func parsePromoCode(pk string) (string, error) {
	code, ok := strings.CutPrefix(pk, SPromo+"#")
	if !ok {
		return "", fmt.Errorf("not a promo key: %s", pk)
	}
	return code, nil
}

func key(pk, sk string) map[string]ddbTypes.AttributeValue {
	return map[string]ddbTypes.AttributeValue{
		"PK": &ddbTypes.AttributeValueMemberS{Value: pk},
		"SK": &ddbTypes.AttributeValueMemberS{Value: sk},
	}
}

// createTableIfNotExists creates the single PK/SK table shared by grants and promos.
func createTableIfNotExists(client *dynamodb.Client, table string) error {
	_, err := client.CreateTable(context.Background(), &dynamodb.CreateTableInput{
		TableName: &table,
		AttributeDefinitions: []ddbTypes.AttributeDefinition{
			{AttributeName: awsString("PK"), AttributeType: ddbTypes.ScalarAttributeTypeS},
			{AttributeName: awsString("SK"), AttributeType: ddbTypes.ScalarAttributeTypeS},
		},
		KeySchema: []ddbTypes.KeySchemaElement{
			{AttributeName: awsString("PK"), KeyType: ddbTypes.KeyTypeHash},
			{AttributeName: awsString("SK"), KeyType: ddbTypes.KeyTypeRange},
		},
		BillingMode: ddbTypes.BillingModePayPerRequest,
	})
	var re *ddbTypes.ResourceInUseException
	if err != nil && !errors.As(err, &re) {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// deleteByPrefix removes every item whose PK starts with prefix. Used by ClearAll in tests.
func deleteByPrefix(ctx context.Context, cli *dynamodb.Client, table, prefix string) error {
	var startKey map[string]ddbTypes.AttributeValue
	for {
		out, err := cli.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 &table,
			FilterExpression:          awsString("begins_with(PK, :p)"),
			ExpressionAttributeValues: map[string]ddbTypes.AttributeValue{":p": &ddbTypes.AttributeValueMemberS{Value: prefix}},
			ProjectionExpression:      awsString("PK, SK"),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return err
		}
		for _, item := range out.Items {
			if _, err := cli.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: &table,
				Key:       map[string]ddbTypes.AttributeValue{"PK": item["PK"], "SK": item["SK"]},
			}); err != nil {
				return err
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
