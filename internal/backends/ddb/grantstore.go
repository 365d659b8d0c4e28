package ddb

import (
	"context"
	"entitled/internal/types"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbTypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	log "github.com/sirupsen/logrus"
)

// GrantStore keeps one item per (user, grant kind): PK=USER#<id>, SK=SUB|TRIAL|TEMP|ADMIN.
type GrantStore struct {
	table string
	cli   *dynamodb.Client
}

func NewGrantStore(table string, cli *dynamodb.Client) (*GrantStore, error) {
	// Creates the table only if it doesn't exist.
	if err := createTableIfNotExists(cli, table); err != nil {
		return nil, err
	}
	return &GrantStore{table: table, cli: cli}, nil
}

func (s *GrantStore) LoadGrants(ctx context.Context, userID string) (types.RawGrantData, error) {
	out, err := s.cli.Query(ctx, &dynamodb.QueryInput{
		TableName:              &s.table,
		KeyConditionExpression: awsString("PK = :pk"),
		ExpressionAttributeValues: map[string]ddbTypes.AttributeValue{
			":pk": &ddbTypes.AttributeValueMemberS{Value: pkUser(userID)},
		},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return types.RawGrantData{}, types.Err(types.ErrDataStoreAccess, err, "load grants for %s", userID)
	}
	var g types.RawGrantData
	for _, item := range out.Items {
		sk, ok := item["SK"].(*ddbTypes.AttributeValueMemberS)
		if !ok {
			continue
		}
		switch sk.Value {
		case SKSubscription:
			g.Subscription = &types.PaidSubscription{}
			err = attributevalue.UnmarshalMap(item, g.Subscription)
		case SKTrial:
			g.Trial = &types.TrialGrant{}
			err = attributevalue.UnmarshalMap(item, g.Trial)
		case SKTemporary:
			g.Temporary = &types.TemporaryGrant{}
			err = attributevalue.UnmarshalMap(item, g.Temporary)
		case SKAdmin:
			g.Admin = &types.AdminFlag{}
		default:
			log.WithFields(log.Fields{"userID": userID, "sk": sk.Value}).Warn("unknown grant item")
		}
		if err != nil {
			return types.RawGrantData{}, types.Err(types.ErrDataStoreAccess, err, "decode %s grant for %s", sk.Value, userID)
		}
	}
	return g, nil
}

func (s *GrantStore) PutSubscription(ctx context.Context, userID string, sub types.PaidSubscription) error {
	return s.put(ctx, userID, SKSubscription, sub)
}

func (s *GrantStore) PutTrial(ctx context.Context, userID string, trial types.TrialGrant) error {
	return s.put(ctx, userID, SKTrial, trial)
}

func (s *GrantStore) PutTemporaryGrant(ctx context.Context, userID string, grant types.TemporaryGrant) error {
	return s.put(ctx, userID, SKTemporary, grant)
}

func (s *GrantStore) DeleteTemporaryGrant(ctx context.Context, userID string) error {
	return s.delete(ctx, userID, SKTemporary)
}

func (s *GrantStore) SetAdmin(ctx context.Context, userID string, admin bool) error {
	if !admin {
		return s.delete(ctx, userID, SKAdmin)
	}
	return s.put(ctx, userID, SKAdmin, struct{}{})
}

func (s *GrantStore) ClearAll(ctx context.Context) error {
	return deleteByPrefix(ctx, s.cli, s.table, SUser+"#")
}

func (s *GrantStore) put(ctx context.Context, userID, sk string, v any) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return err
	}
	item["PK"] = &ddbTypes.AttributeValueMemberS{Value: pkUser(userID)}
	item["SK"] = &ddbTypes.AttributeValueMemberS{Value: sk}
	_, err = s.cli.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.table,
		Item:      item,
	})
	return err
}

func (s *GrantStore) delete(ctx context.Context, userID, sk string) error {
	_, err := s.cli.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.table,
		Key:       key(pkUser(userID), sk),
	})
	return err
}
