package ddb

import (
	"context"
	"entitled/internal/types"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbTypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// PromoStore keeps promo definitions at PK=PROMO#<code>, SK=PROFILE together with
// the redemption counter and the string set of redeeming users.
type PromoStore struct {
	table string
	cli   *dynamodb.Client
}

func NewPromoStore(table string, cli *dynamodb.Client) (*PromoStore, error) {
	if err := createTableIfNotExists(cli, table); err != nil {
		return nil, err
	}
	return &PromoStore{table: table, cli: cli}, nil
}

func (s *PromoStore) GetPromo(ctx context.Context, code string) (types.PromoCode, error) {
	out, err := s.cli.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.table,
		Key:            key(pkPromo(code), SKProfile),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return types.PromoCode{}, err
	}
	if out.Item == nil {
		return types.PromoCode{}, types.ErrNotFound
	}
	var p types.PromoCode
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return types.PromoCode{}, err
	}
	return p, nil
}

func (s *PromoStore) ListPromos(ctx context.Context) ([]string, error) {
	var codes []string
	var startKey map[string]ddbTypes.AttributeValue
	for {
		out, err := s.cli.Scan(ctx, &dynamodb.ScanInput{
			TableName:        &s.table,
			FilterExpression: awsString("begins_with(PK, :p) AND SK = :sk"),
			ExpressionAttributeValues: map[string]ddbTypes.AttributeValue{
				":p":  &ddbTypes.AttributeValueMemberS{Value: SPromo + "#"},
				":sk": &ddbTypes.AttributeValueMemberS{Value: SKProfile},
			},
			ProjectionExpression: awsString("PK"),
			ExclusiveStartKey:    startKey,
		})
		if err != nil {
			return nil, err
		}
		for _, item := range out.Items {
			var pk struct {
				PK string `dynamodbav:"PK"`
			}
			if err := attributevalue.UnmarshalMap(item, &pk); err != nil {
				return nil, err
			}
			code, err := parsePromoCode(pk.PK)
			if err != nil {
				return nil, err
			}
			codes = append(codes, code)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return codes, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// PutPromo updates the definition fields in place so redemptions and the set of
// redeemers survive a redefinition.
func (s *PromoStore) PutPromo(ctx context.Context, promo types.PromoCode) error {
	if err := promo.Validate(); err != nil {
		return types.Err(types.ErrInvalidPromo, err, "")
	}
	update := "SET #code=:code, #desc=:desc, #gd=:gd, #max=:max, #dis=:dis, #cnt=if_not_exists(#cnt, :zero)"
	names := map[string]string{
		"#code": "code",
		"#desc": "description",
		"#gd":   "grant_days",
		"#max":  "max_redemptions",
		"#dis":  "disabled",
		"#cnt":  "redemptions",
		"#vu":   "valid_until",
	}
	values := map[string]ddbTypes.AttributeValue{
		":code": &ddbTypes.AttributeValueMemberS{Value: promo.Code},
		":desc": &ddbTypes.AttributeValueMemberS{Value: promo.Description},
		":gd":   &ddbTypes.AttributeValueMemberN{Value: strconv.Itoa(promo.GrantDays)},
		":max":  &ddbTypes.AttributeValueMemberN{Value: strconv.Itoa(promo.MaxRedemptions)},
		":dis":  &ddbTypes.AttributeValueMemberBOOL{Value: promo.Disabled},
		":zero": &ddbTypes.AttributeValueMemberN{Value: "0"},
	}
	if promo.ValidUntil != nil {
		update += ", #vu=:vu"
		values[":vu"] = &ddbTypes.AttributeValueMemberS{Value: promo.ValidUntil.UTC().Format(time.RFC3339Nano)}
	} else {
		update += " REMOVE #vu"
	}
	_, err := s.cli.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &s.table,
		Key:                       key(pkPromo(promo.Code), SKProfile),
		UpdateExpression:          awsString(update),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	return err
}

func (s *PromoStore) DeletePromo(ctx context.Context, code string) error {
	_, err := s.cli.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.table,
		Key:       key(pkPromo(code), SKProfile),
	})
	return err
}

// Redeem is one conditional update: bump the counter and add the user to the
// redeemers set only if the code exists, is under its cap and the user is new.
func (s *PromoStore) Redeem(ctx context.Context, code, userID string) error {
	_, err := s.cli.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.table,
		Key:              key(pkPromo(code), SKProfile),
		UpdateExpression: awsString("ADD #cnt :one, #by :uidset"),
		ConditionExpression: awsString(
			"attribute_exists(PK) AND " +
				"(#max = :zero OR attribute_not_exists(#cnt) OR #cnt < #max) AND " +
				"NOT contains(#by, :uid)",
		),
		ExpressionAttributeNames: map[string]string{
			"#cnt": "redemptions",
			"#max": "max_redemptions",
			"#by":  "redeemed_by",
		},
		ExpressionAttributeValues: map[string]ddbTypes.AttributeValue{
			":one":    &ddbTypes.AttributeValueMemberN{Value: "1"},
			":zero":   &ddbTypes.AttributeValueMemberN{Value: "0"},
			":uid":    &ddbTypes.AttributeValueMemberS{Value: userID},
			":uidset": &ddbTypes.AttributeValueMemberSS{Value: []string{userID}},
		},
		ReturnValuesOnConditionCheckFailure: ddbTypes.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var cc *ddbTypes.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			if len(cc.Item) == 0 {
				return types.ErrNotFound
			}
			return types.ErrPrecondition
		}
		return types.Err(types.ErrDataStoreAccess, err, "redeem %s", code)
	}
	return nil
}

func (s *PromoStore) ClearAll(ctx context.Context) error {
	return deleteByPrefix(ctx, s.cli, s.table, SPromo+"#")
}
