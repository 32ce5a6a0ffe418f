package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"findost/internal/domain"
)

type fakeDynamo struct {
	queryOut    *dynamodb.QueryOutput
	queryErr    error
	txErr       error
	lastQueryIn *dynamodb.QueryInput
	lastTxInput *dynamodb.TransactWriteItemsInput
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.lastQueryIn = in
	return f.queryOut, f.queryErr
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.lastTxInput = in
	return &dynamodb.TransactWriteItemsOutput{}, f.txErr
}

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func makeItem(userID, createdAt, message, reply string, onTopic bool) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: userPK(userID)},
		"SK":        &types.AttributeValueMemberS{Value: skPrefixMsg + createdAt},
		"userId":    &types.AttributeValueMemberS{Value: userID},
		"message":   &types.AttributeValueMemberS{Value: message},
		"reply":     &types.AttributeValueMemberS{Value: reply},
		"onTopic":   &types.AttributeValueMemberBOOL{Value: onTopic},
		"createdAt": &types.AttributeValueMemberS{Value: createdAt},
	}
}

func mustNewStore(t *testing.T, db *fakeDynamo) *DynamoStore {
	t.Helper()
	s, err := NewDynamoStore(db, "test-table")
	require.NoError(t, err)
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestNewDynamoStore_NilAPI(t *testing.T) {
	_, err := NewDynamoStore(nil, "test-table")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

func TestNewDynamoStore_EmptyTableName(t *testing.T) {
	_, err := NewDynamoStore(&fakeDynamo{}, " ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")
}

func TestRecentExchanges_KeyConditionExpression(t *testing.T) {
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{}}
	s := mustNewStore(t, db)
	_, err := s.RecentExchanges(context.Background(), "u-1", 5)
	require.NoError(t, err)
	require.Equal(t, "PK = :pk AND begins_with(SK, :prefix)", *db.lastQueryIn.KeyConditionExpression)
	require.Equal(t, "USER#u-1", db.lastQueryIn.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value)
	require.False(t, *db.lastQueryIn.ScanIndexForward)
	require.Equal(t, int32(5), *db.lastQueryIn.Limit)
}

func TestRecentExchanges_ReordersDescendingResultsToChronological(t *testing.T) {
	db := &fakeDynamo{
		queryOut: &dynamodb.QueryOutput{
			Items: []map[string]types.AttributeValue{
				makeItem("u-1", "2026-02-27T12:00:00Z", "newer", "reply 2", true),
				makeItem("u-1", "2026-02-27T11:00:00Z", "older", "reply 1", false),
			},
		},
	}
	s := mustNewStore(t, db)
	got, err := s.RecentExchanges(context.Background(), "u-1", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "older", got[0].Message)
	require.False(t, got[0].OnTopic)
	require.Equal(t, "newer", got[1].Message)
	require.True(t, got[1].OnTopic)
	require.Equal(t, time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC), got[1].CreatedAt)
}

func TestRecentExchanges_ZeroLimitSkipsQuery(t *testing.T) {
	db := &fakeDynamo{}
	s := mustNewStore(t, db)
	got, err := s.RecentExchanges(context.Background(), "u-1", 0)
	require.NoError(t, err)
	require.Empty(t, got)
	require.Nil(t, db.lastQueryIn)
}

func TestRecentExchanges_QueryError(t *testing.T) {
	db := &fakeDynamo{queryErr: errors.New("ResourceNotFoundException")}
	s := mustNewStore(t, db)
	_, err := s.RecentExchanges(context.Background(), "u-1", 5)
	require.Error(t, err)
	require.Contains(t, err.Error(), "RecentExchanges")
}

func TestRecentExchanges_MalformedItem(t *testing.T) {
	item := map[string]types.AttributeValue{
		"PK":     &types.AttributeValueMemberS{Value: "USER#u-1"},
		"SK":     &types.AttributeValueMemberS{Value: "MSG#ts"},
		"userId": &types.AttributeValueMemberS{Value: "u-1"},
	}
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item}}}
	s := mustNewStore(t, db)
	_, err := s.RecentExchanges(context.Background(), "u-1", 5)
	require.Error(t, err)
	require.Contains(t, err.Error(), "message")
}

func TestSaveExchange_HappyPath(t *testing.T) {
	db := &fakeDynamo{}
	s := mustNewStore(t, db)
	at := time.Date(2026, 2, 28, 18, 0, 0, 0, time.UTC)

	err := s.SaveExchange(context.Background(), domain.Exchange{
		UserID:    "u-1",
		Message:   "How do I start an SIP?",
		Reply:     "Pick a fund...",
		OnTopic:   true,
		CreatedAt: at,
	})
	require.NoError(t, err)
	require.NotNil(t, db.lastTxInput)
	require.Len(t, db.lastTxInput.TransactItems, 2)

	put := db.lastTxInput.TransactItems[0].Put
	require.Equal(t, "attribute_not_exists(PK) AND attribute_not_exists(SK)", *put.ConditionExpression)
	require.Equal(t, "USER#u-1", put.Item["PK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "MSG#2026-02-28T18:00:00.000000000Z", put.Item["SK"].(*types.AttributeValueMemberS).Value)
	require.True(t, put.Item["onTopic"].(*types.AttributeValueMemberBOOL).Value)
	wantTTL := "1774949400" // fixedNow + 30 days
	require.Equal(t, wantTTL, put.Item["ttl"].(*types.AttributeValueMemberN).Value)

	update := db.lastTxInput.TransactItems[1].Update
	require.Equal(t, skMeta, update.Key["SK"].(*types.AttributeValueMemberS).Value)
	require.Contains(t, *update.UpdateExpression, "ADD exchanges :one")
	require.Equal(t, "2026-02-28T18:00:00Z", update.ExpressionAttributeValues[":at"].(*types.AttributeValueMemberS).Value)
}

func TestSaveExchange_DefaultsTimestamp(t *testing.T) {
	db := &fakeDynamo{}
	s := mustNewStore(t, db)
	err := s.SaveExchange(context.Background(), domain.Exchange{UserID: "u-1", Message: "hi", Reply: "hello"})
	require.NoError(t, err)
	put := db.lastTxInput.TransactItems[0].Put
	require.Equal(t, msgSK(fixedNow), put.Item["SK"].(*types.AttributeValueMemberS).Value)
}

func TestSaveExchange_MissingUser(t *testing.T) {
	db := &fakeDynamo{}
	s := mustNewStore(t, db)
	err := s.SaveExchange(context.Background(), domain.Exchange{Message: "hi"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "user id")
	require.Nil(t, db.lastTxInput)
}

func TestSaveExchange_DynamoError(t *testing.T) {
	db := &fakeDynamo{txErr: errors.New("transaction canceled")}
	s := mustNewStore(t, db)
	err := s.SaveExchange(context.Background(), domain.Exchange{UserID: "u-1", Message: "hi"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "SaveExchange")
}

func TestUserPK(t *testing.T) {
	require.Equal(t, "USER#abc", userPK("abc"))
}

func TestMsgSK(t *testing.T) {
	ts := time.Date(2026, 2, 25, 10, 0, 0, 500, time.FixedZone("IST", 19800))
	require.Equal(t, "MSG#2026-02-25T04:30:00.000000500Z", msgSK(ts))
}

func TestMsgSK_SortsChronologically(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	offsets := []time.Duration{
		0,
		5 * time.Millisecond,
		100 * time.Millisecond,
		120 * time.Millisecond,
		999999999,
		time.Second,
	}
	for i := 1; i < len(offsets); i++ {
		earlier := msgSK(base.Add(offsets[i-1]))
		later := msgSK(base.Add(offsets[i]))
		require.Less(t, earlier, later, "offset %v vs %v", offsets[i-1], offsets[i])
	}
}
