package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"findost/internal/domain"
)

const (
	skPrefixMsg = "MSG#"
	// skTimeLayout keeps every fraction digit so sort keys order by time.
	skTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"
	skMeta       = "META#"
	ttlDuration  = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoStore keeps relay exchanges in a single DynamoDB table, one
// partition per user.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// NewDynamoStore creates a transcript store over tableName.
func NewDynamoStore(api dynamodbAPI, tableName string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoStore{api: api, tableName: tableName, now: time.Now}, nil
}

// userPK returns the DynamoDB partition key for a user.
func userPK(userID string) string {
	return "USER#" + userID
}

// msgSK returns the sort key for an exchange recorded at ts.
func msgSK(ts time.Time) string {
	return skPrefixMsg + ts.UTC().Format(skTimeLayout)
}

func (s *DynamoStore) ttlValue() int64 {
	return s.now().Add(ttlDuration).Unix()
}

// RecentExchanges returns up to limit of the user's latest exchanges in
// chronological order.
func (s *DynamoStore) RecentExchanges(ctx context.Context, userID string, limit int) ([]domain.Exchange, error) {
	if limit <= 0 {
		return nil, nil
	}

	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: userPK(userID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		// Read newest first so LIMIT favors the most recent context.
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}

	out, err := s.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: RecentExchanges query: %w", err)
	}

	exchanges := make([]domain.Exchange, 0, len(out.Items))
	for _, item := range out.Items {
		ex, err := itemToExchange(item)
		if err != nil {
			return nil, fmt.Errorf("repository: RecentExchanges unmarshal: %w", err)
		}
		exchanges = append(exchanges, ex)
	}
	reverse(exchanges)
	return exchanges, nil
}

// SaveExchange writes the exchange and bumps the user's META# record in one
// transaction.
func (s *DynamoStore) SaveExchange(ctx context.Context, ex domain.Exchange) error {
	if strings.TrimSpace(ex.UserID) == "" {
		return errors.New("repository: SaveExchange: user id is required")
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = s.now().UTC()
	}
	ttl := strconv.FormatInt(s.ttlValue(), 10)

	_, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(s.tableName),
					Item:                exchangeItem(ex, ttl),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Update: &types.Update{
					TableName: aws.String(s.tableName),
					Key: map[string]types.AttributeValue{
						"PK": &types.AttributeValueMemberS{Value: userPK(ex.UserID)},
						"SK": &types.AttributeValueMemberS{Value: skMeta},
					},
					UpdateExpression: aws.String("SET userId = :uid, lastActivity = :at, #ttl = :ttl ADD exchanges :one"),
					ExpressionAttributeNames: map[string]string{
						"#ttl": "ttl",
					},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":uid": &types.AttributeValueMemberS{Value: ex.UserID},
						":at":  &types.AttributeValueMemberS{Value: ex.CreatedAt.UTC().Format(time.RFC3339)},
						":ttl": &types.AttributeValueMemberN{Value: ttl},
						":one": &types.AttributeValueMemberN{Value: "1"},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SaveExchange: %w", err)
	}
	return nil
}

func exchangeItem(ex domain.Exchange, ttl string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: userPK(ex.UserID)},
		"SK":        &types.AttributeValueMemberS{Value: msgSK(ex.CreatedAt)},
		"userId":    &types.AttributeValueMemberS{Value: ex.UserID},
		"message":   &types.AttributeValueMemberS{Value: ex.Message},
		"reply":     &types.AttributeValueMemberS{Value: ex.Reply},
		"onTopic":   &types.AttributeValueMemberBOOL{Value: ex.OnTopic},
		"createdAt": &types.AttributeValueMemberS{Value: ex.CreatedAt.UTC().Format(time.RFC3339Nano)},
		"ttl":       &types.AttributeValueMemberN{Value: ttl},
	}
}

// itemToExchange converts a DynamoDB attribute map to an Exchange.
func itemToExchange(item map[string]types.AttributeValue) (domain.Exchange, error) {
	userID, err := strAttr(item, "userId")
	if err != nil {
		return domain.Exchange{}, err
	}
	message, err := strAttr(item, "message")
	if err != nil {
		return domain.Exchange{}, err
	}
	reply, _ := strAttr(item, "reply") // allow empty

	ex := domain.Exchange{
		UserID:  userID,
		Message: message,
		Reply:   reply,
	}
	if v, ok := item["onTopic"].(*types.AttributeValueMemberBOOL); ok {
		ex.OnTopic = v.Value
	}
	if raw, err := strAttr(item, "createdAt"); err == nil {
		if ts, perr := time.Parse(time.RFC3339Nano, raw); perr == nil {
			ex.CreatedAt = ts
		}
	}
	return ex, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func reverse(exchanges []domain.Exchange) {
	for i, j := 0, len(exchanges)-1; i < j; i, j = i+1, j-1 {
		exchanges[i], exchanges[j] = exchanges[j], exchanges[i]
	}
}
