// Package dynamo implements tracking.EngagementStore on a DynamoDB table
// keyed by tracking_token. Increments use UpdateItem ADD, which DynamoDB
// applies atomically per item.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/service/tracking"
)

// batchGetLimit is DynamoDB's maximum keys per BatchGetItem.
const batchGetLimit = 100

// API is the subset of *dynamodb.Client the store uses.
type API interface {
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
}

type engagementItem struct {
	TrackingToken  string     `dynamodbav:"tracking_token"`
	Recipient      string     `dynamodbav:"recipient"`
	OpenCount      int        `dynamodbav:"open_count"`
	ClickCount     int        `dynamodbav:"click_count"`
	FirstOpenedAt  *time.Time `dynamodbav:"first_opened_at,omitempty"`
	LastOpenedAt   *time.Time `dynamodbav:"last_opened_at,omitempty"`
	FirstClickedAt *time.Time `dynamodbav:"first_clicked_at,omitempty"`
	LastClickedAt  *time.Time `dynamodbav:"last_clicked_at,omitempty"`
	LastIP         string     `dynamodbav:"last_ip,omitempty"`
	LastUserAgent  string     `dynamodbav:"last_user_agent,omitempty"`
	LastDeviceType string     `dynamodbav:"last_device_type,omitempty"`
	LastSeenAt     *time.Time `dynamodbav:"last_seen_at,omitempty"`
	UpdatedAt      *time.Time `dynamodbav:"updated_at,omitempty"`
}

func (it engagementItem) record() domain.EngagementRecord {
	rec := domain.EngagementRecord{
		TrackingToken:  it.TrackingToken,
		Recipient:      it.Recipient,
		OpenCount:      it.OpenCount,
		ClickCount:     it.ClickCount,
		FirstOpenedAt:  it.FirstOpenedAt,
		LastOpenedAt:   it.LastOpenedAt,
		FirstClickedAt: it.FirstClickedAt,
		LastClickedAt:  it.LastClickedAt,
		LastClient: domain.ClientMetadata{
			IPAddress:  it.LastIP,
			UserAgent:  it.LastUserAgent,
			DeviceType: it.LastDeviceType,
		},
	}
	if it.LastSeenAt != nil {
		rec.LastClient.SeenAt = *it.LastSeenAt
	}
	if it.UpdatedAt != nil {
		rec.UpdatedAt = *it.UpdatedAt
	}
	return rec
}

// EngagementStore keeps engagement records in DynamoDB.
type EngagementStore struct {
	client    API
	tableName string
	now       func() time.Time
}

func NewEngagementStore(client API, tableName string) *EngagementStore {
	return &EngagementStore{client: client, tableName: tableName, now: func() time.Time { return time.Now().UTC() }}
}

func (s *EngagementStore) key(token string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"tracking_token": &types.AttributeValueMemberS{Value: token},
	}
}

func timeValue(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: t.UTC().Format(time.RFC3339Nano)}
}

func (s *EngagementStore) Increment(ctx context.Context, token, recipient string, kind domain.EventKind, at time.Time) error {
	var expr string
	switch kind {
	case domain.EventOpen:
		expr = "ADD open_count :one SET recipient = if_not_exists(recipient, :r), " +
			"first_opened_at = if_not_exists(first_opened_at, :at), last_opened_at = :at, updated_at = :now"
	case domain.EventClick:
		expr = "ADD click_count :one SET recipient = if_not_exists(recipient, :r), " +
			"first_clicked_at = if_not_exists(first_clicked_at, :at), last_clicked_at = :at, updated_at = :now"
	default:
		return tracking.ErrInvalidEventKind
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              s.key(token),
		UpdateExpression: aws.String(expr),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":r":   &types.AttributeValueMemberS{Value: recipient},
			":at":  timeValue(at),
			":now": timeValue(s.now()),
		},
	})
	if err != nil {
		return fmt.Errorf("dynamodb increment %s: %w", kind, err)
	}
	return nil
}

func (s *EngagementStore) SaveClientMetadata(ctx context.Context, token string, meta domain.ClientMetadata) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 s.key(token),
		ConditionExpression: aws.String("attribute_exists(tracking_token)"),
		UpdateExpression:    aws.String("SET last_ip = :ip, last_user_agent = :ua, last_device_type = :dev, last_seen_at = :seen"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ip":   &types.AttributeValueMemberS{Value: meta.IPAddress},
			":ua":   &types.AttributeValueMemberS{Value: meta.UserAgent},
			":dev":  &types.AttributeValueMemberS{Value: meta.DeviceType},
			":seen": timeValue(meta.SeenAt),
		},
	})
	if isConditionFailed(err) {
		return tracking.ErrEngagementNotFound
	}
	if err != nil {
		return fmt.Errorf("dynamodb save client metadata: %w", err)
	}
	return nil
}

func (s *EngagementStore) Get(ctx context.Context, token string) (*domain.EngagementRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(token),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb get engagement: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, tracking.ErrEngagementNotFound
	}
	var it engagementItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal engagement: %w", err)
	}
	rec := it.record()
	return &rec, nil
}

func (s *EngagementStore) GetMany(ctx context.Context, tokens []string) (map[string]domain.EngagementRecord, error) {
	out := make(map[string]domain.EngagementRecord, len(tokens))
	for start := 0; start < len(tokens); start += batchGetLimit {
		end := min(start+batchGetLimit, len(tokens))
		keys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, t := range tokens[start:end] {
			keys = append(keys, s.key(t))
		}

		pending := map[string]types.KeysAndAttributes{
			s.tableName: {Keys: keys, ConsistentRead: aws.Bool(true)},
		}
		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt >= 5 {
				return nil, fmt.Errorf("dynamodb batch get: unprocessed keys after %d attempts", attempt)
			}
			resp, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: pending})
			if err != nil {
				return nil, fmt.Errorf("dynamodb batch get: %w", err)
			}
			for _, raw := range resp.Responses[s.tableName] {
				var it engagementItem
				if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
					return nil, fmt.Errorf("unmarshal engagement: %w", err)
				}
				out[it.TrackingToken] = it.record()
			}
			pending = resp.UnprocessedKeys
		}
	}
	return out, nil
}

// Raise applies one conditional SET per counter; a failed condition means
// the stored value is already high enough.
func (s *EngagementStore) Raise(ctx context.Context, token, recipient string, opens, clicks int) error {
	for _, c := range []struct {
		attr string
		n    int
	}{{"open_count", opens}, {"click_count", clicks}} {
		_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:           aws.String(s.tableName),
			Key:                 s.key(token),
			ConditionExpression: aws.String("attribute_not_exists(#c) OR #c < :n"),
			UpdateExpression:    aws.String("SET #c = :n, recipient = if_not_exists(recipient, :r), updated_at = :now"),
			ExpressionAttributeNames: map[string]string{
				"#c": c.attr,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":n":   &types.AttributeValueMemberN{Value: fmt.Sprint(c.n)},
				":r":   &types.AttributeValueMemberS{Value: recipient},
				":now": timeValue(s.now()),
			},
		})
		if err != nil && !isConditionFailed(err) {
			return fmt.Errorf("dynamodb raise %s: %w", c.attr, err)
		}
	}
	return nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
