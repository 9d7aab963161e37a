package dynamo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/service/tracking"
)

type fakeDynamo struct {
	updates   []*dynamodb.UpdateItemInput
	updateErr error
	item      map[string]types.AttributeValue
	batches   []*dynamodb.BatchGetItemOutput
	batchIn   []*dynamodb.BatchGetItemInput
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updates = append(f.updates, in)
	return &dynamodb.UpdateItemOutput{}, f.updateErr
}

func (f *fakeDynamo) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.item}, nil
}

func (f *fakeDynamo) BatchGetItem(_ context.Context, in *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	f.batchIn = append(f.batchIn, in)
	if len(f.batches) == 0 {
		return &dynamodb.BatchGetItemOutput{}, nil
	}
	out := f.batches[0]
	f.batches = f.batches[1:]
	return out, nil
}

func TestIncrement_UsesAtomicAdd(t *testing.T) {
	fake := &fakeDynamo{}
	s := NewEngagementStore(fake, "engagements")
	at := time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Increment(context.Background(), "tok", "a@example.com", domain.EventOpen, at))
	require.Len(t, fake.updates, 1)
	in := fake.updates[0]
	assert.Equal(t, "engagements", aws.ToString(in.TableName))
	assert.True(t, strings.HasPrefix(aws.ToString(in.UpdateExpression), "ADD open_count :one"))
	assert.Contains(t, aws.ToString(in.UpdateExpression), "first_opened_at = if_not_exists(first_opened_at, :at)")
	assert.Equal(t, &types.AttributeValueMemberS{Value: "2025-04-02T10:00:00Z"}, in.ExpressionAttributeValues[":at"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "tok"}, in.Key["tracking_token"])
}

func TestIncrement_RejectsUnknownKind(t *testing.T) {
	s := NewEngagementStore(&fakeDynamo{}, "t")
	assert.ErrorIs(t, s.Increment(context.Background(), "tok", "", "bounce", time.Now()), tracking.ErrInvalidEventKind)
}

func TestSaveClientMetadata_MissingRecord(t *testing.T) {
	fake := &fakeDynamo{updateErr: &types.ConditionalCheckFailedException{}}
	s := NewEngagementStore(fake, "t")
	err := s.SaveClientMetadata(context.Background(), "tok", domain.ClientMetadata{})
	assert.ErrorIs(t, err, tracking.ErrEngagementNotFound)
}

func TestGet(t *testing.T) {
	opened := time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)
	item, err := attributevalue.MarshalMap(engagementItem{
		TrackingToken: "tok",
		Recipient:     "a@example.com",
		OpenCount:     4,
		FirstOpenedAt: &opened,
		LastIP:        "198.51.100.7",
	})
	require.NoError(t, err)

	s := NewEngagementStore(&fakeDynamo{item: item}, "t")
	rec, err := s.Get(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, 4, rec.OpenCount)
	assert.Equal(t, opened, *rec.FirstOpenedAt)
	assert.Equal(t, "198.51.100.7", rec.LastClient.IPAddress)

	_, err = NewEngagementStore(&fakeDynamo{}, "t").Get(context.Background(), "tok")
	assert.ErrorIs(t, err, tracking.ErrEngagementNotFound)
}

func TestGetMany_RetriesUnprocessedKeys(t *testing.T) {
	first, _ := attributevalue.MarshalMap(engagementItem{TrackingToken: "t1", OpenCount: 1})
	second, _ := attributevalue.MarshalMap(engagementItem{TrackingToken: "t2", ClickCount: 2})
	fake := &fakeDynamo{batches: []*dynamodb.BatchGetItemOutput{
		{
			Responses: map[string][]map[string]types.AttributeValue{"t": {first}},
			UnprocessedKeys: map[string]types.KeysAndAttributes{
				"t": {Keys: []map[string]types.AttributeValue{{"tracking_token": &types.AttributeValueMemberS{Value: "t2"}}}},
			},
		},
		{Responses: map[string][]map[string]types.AttributeValue{"t": {second}}},
	}}

	out, err := NewEngagementStore(fake, "t").GetMany(context.Background(), []string{"t1", "t2", "t3"})
	require.NoError(t, err)
	assert.Len(t, fake.batchIn, 2)
	assert.Equal(t, 1, out["t1"].OpenCount)
	assert.Equal(t, 2, out["t2"].ClickCount)
	_, ok := out["t3"]
	assert.False(t, ok)
}

func TestRaise_IgnoresSatisfiedConditions(t *testing.T) {
	fake := &fakeDynamo{updateErr: &types.ConditionalCheckFailedException{}}
	s := NewEngagementStore(fake, "t")
	require.NoError(t, s.Raise(context.Background(), "tok", "a@example.com", 2, 1))
	require.Len(t, fake.updates, 2)
	assert.Equal(t, "open_count", fake.updates[0].ExpressionAttributeNames["#c"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "2"}, fake.updates[0].ExpressionAttributeValues[":n"])

	fake.updateErr = errors.New("throttled")
	assert.Error(t, s.Raise(context.Background(), "tok", "a@example.com", 2, 1))
}
