package subscription

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/gridshot/tierkit/pkg/catalog"
)

// DynamoAPI is the subset of the DynamoDB client used by the store.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

const (
	indexByStatusNextPayment = "status-next_payment_at-index"
	indexByOwnerStatus       = "owner_id-status-index"
)

// timeFormat keeps stored timestamps lexically ordered so the range key
// condition on next_payment_at works as a chronological comparison.
const timeFormat = time.RFC3339

// Dynamo implements Store on a DynamoDB table keyed by (owner_id,
// project_id) with two global secondary indexes: (status, next_payment_at)
// for due-renewal scans and (owner_id, status) for quota counting.
type Dynamo struct {
	client DynamoAPI
	table  string
}

// NewDynamo creates a DynamoDB backed subscription store.
func NewDynamo(client DynamoAPI, table string) *Dynamo {
	if client == nil {
		panic("subscription: DynamoAPI is required")
	}
	if table == "" {
		panic("subscription: table name is required")
	}
	return &Dynamo{client: client, table: table}
}

type record struct {
	OwnerID       string `dynamodbav:"owner_id"`
	ProjectID     string `dynamodbav:"project_id"`
	Tier          string `dynamodbav:"tier"`
	Status        string `dynamodbav:"status"`
	CredentialID  string `dynamodbav:"credential_id"`
	UsagePlanID   string `dynamodbav:"usage_plan_id"`
	CardToken     string `dynamodbav:"card_token"`
	CardExpiry    string `dynamodbav:"card_expiry"`
	NextPaymentAt string `dynamodbav:"next_payment_at"`
	BilledAt      string `dynamodbav:"billed_at"`
	CreatedAt     string `dynamodbav:"created_at"`
}

func toRecord(sub *Subscription) record {
	return record{
		OwnerID:       sub.OwnerID,
		ProjectID:     sub.ProjectID,
		Tier:          string(sub.Tier),
		Status:        string(sub.Status),
		CredentialID:  sub.CredentialID,
		UsagePlanID:   sub.UsagePlanID,
		CardToken:     sub.Card.Token,
		CardExpiry:    sub.Card.Expiry,
		NextPaymentAt: sub.NextPaymentAt.UTC().Format(timeFormat),
		BilledAt:      sub.BilledAt.UTC().Format(timeFormat),
		CreatedAt:     sub.CreatedAt.UTC().Format(timeFormat),
	}
}

func (r record) toSubscription() (Subscription, error) {
	sub := Subscription{
		OwnerID:      r.OwnerID,
		ProjectID:    r.ProjectID,
		Tier:         catalog.Tier(r.Tier),
		Status:       Status(r.Status),
		CredentialID: r.CredentialID,
		UsagePlanID:  r.UsagePlanID,
		Card:         Card{Token: r.CardToken, Expiry: r.CardExpiry},
	}

	for _, f := range []struct {
		raw  string
		dest *time.Time
	}{
		{r.NextPaymentAt, &sub.NextPaymentAt},
		{r.BilledAt, &sub.BilledAt},
		{r.CreatedAt, &sub.CreatedAt},
	} {
		if f.raw == "" {
			continue
		}
		t, err := time.Parse(timeFormat, f.raw)
		if err != nil {
			return Subscription{}, fmt.Errorf("parse stored timestamp: %w", err)
		}
		*f.dest = t
	}

	return sub, nil
}

func itemKey(ownerID, projectID string) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		"owner_id":   &ddbtypes.AttributeValueMemberS{Value: ownerID},
		"project_id": &ddbtypes.AttributeValueMemberS{Value: projectID},
	}
}

func (d *Dynamo) Get(ctx context.Context, ownerID, projectID string) (*Subscription, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		Key:            itemKey(ownerID, projectID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, errors.Join(ErrFailedToQuery, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	var r record
	if err := attributevalue.UnmarshalMap(out.Item, &r); err != nil {
		return nil, errors.Join(ErrFailedToQuery, err)
	}

	sub, err := r.toSubscription()
	if err != nil {
		return nil, errors.Join(ErrFailedToQuery, err)
	}
	return &sub, nil
}

func (d *Dynamo) Put(ctx context.Context, sub *Subscription) error {
	item, err := attributevalue.MarshalMap(toRecord(sub))
	if err != nil {
		return errors.Join(ErrFailedToPersist, err)
	}

	if _, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	}); err != nil {
		return errors.Join(ErrFailedToPersist, err)
	}
	return nil
}

func (d *Dynamo) Update(ctx context.Context, ownerID, projectID string, changes Changes) error {
	set := make([]string, 0, 7)
	names := make(map[string]string)
	values := make(map[string]ddbtypes.AttributeValue)

	add := func(attr string, value string) {
		placeholder := "#" + attr
		names[placeholder] = attr
		set = append(set, fmt.Sprintf("%s = :%s", placeholder, attr))
		values[":"+attr] = &ddbtypes.AttributeValueMemberS{Value: value}
	}

	if changes.Tier != nil {
		add("tier", string(*changes.Tier))
	}
	if changes.Status != nil {
		add("status", string(*changes.Status))
	}
	if changes.CredentialID != nil {
		add("credential_id", *changes.CredentialID)
	}
	if changes.UsagePlanID != nil {
		add("usage_plan_id", *changes.UsagePlanID)
	}
	if changes.Card != nil {
		add("card_token", changes.Card.Token)
		add("card_expiry", changes.Card.Expiry)
	}
	if changes.NextPaymentAt != nil {
		add("next_payment_at", changes.NextPaymentAt.UTC().Format(timeFormat))
	}
	if changes.BilledAt != nil {
		add("billed_at", changes.BilledAt.UTC().Format(timeFormat))
	}

	if len(set) == 0 {
		return nil
	}

	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(d.table),
		Key:                       itemKey(ownerID, projectID),
		UpdateExpression:          aws.String("SET " + strings.Join(set, ", ")),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(owner_id)"),
	})
	if err != nil {
		var ccf *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return errors.Join(ErrFailedToPersist, err)
	}
	return nil
}

func (d *Dynamo) QueryDue(ctx context.Context, status Status, before time.Time, cursor Cursor, limit int32) ([]Subscription, Cursor, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(d.table),
		IndexName:              aws.String(indexByStatusNextPayment),
		KeyConditionExpression: aws.String("#status = :status AND next_payment_at <= :before"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":status": &ddbtypes.AttributeValueMemberS{Value: string(status)},
			":before": &ddbtypes.AttributeValueMemberS{Value: before.UTC().Format(timeFormat)},
		},
		Limit: aws.Int32(limit),
	}

	if cursor != "" {
		startKey, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		input.ExclusiveStartKey = startKey
	}

	out, err := d.client.Query(ctx, input)
	if err != nil {
		return nil, "", errors.Join(ErrFailedToQuery, err)
	}

	subs := make([]Subscription, 0, len(out.Items))
	for _, item := range out.Items {
		var r record
		if err := attributevalue.UnmarshalMap(item, &r); err != nil {
			return nil, "", errors.Join(ErrFailedToQuery, err)
		}
		sub, err := r.toSubscription()
		if err != nil {
			return nil, "", errors.Join(ErrFailedToQuery, err)
		}
		subs = append(subs, sub)
	}

	var next Cursor
	if len(out.LastEvaluatedKey) > 0 {
		next, err = encodeCursor(out.LastEvaluatedKey)
		if err != nil {
			return nil, "", err
		}
	}

	return subs, next, nil
}

func (d *Dynamo) CountActiveFree(ctx context.Context, ownerID string, limit int32) (int, error) {
	out, err := d.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.table),
		IndexName:              aws.String(indexByOwnerStatus),
		KeyConditionExpression: aws.String("owner_id = :owner AND #status = :status"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":owner":  &ddbtypes.AttributeValueMemberS{Value: ownerID},
			":status": &ddbtypes.AttributeValueMemberS{Value: string(StatusActiveFree)},
		},
		Select: ddbtypes.SelectCount,
		Limit:  aws.Int32(limit),
	})
	if err != nil {
		return 0, errors.Join(ErrFailedToCountActive, err)
	}
	return int(out.Count), nil
}

// The cursor is the index key of the last evaluated item, flattened to
// plain strings and base64-encoded. Callers treat it as opaque.
func encodeCursor(lastKey map[string]ddbtypes.AttributeValue) (Cursor, error) {
	flat := make(map[string]string, len(lastKey))
	if err := attributevalue.UnmarshalMap(lastKey, &flat); err != nil {
		return "", errors.Join(ErrInvalidCursor, err)
	}

	raw, err := json.Marshal(flat)
	if err != nil {
		return "", errors.Join(ErrInvalidCursor, err)
	}
	return Cursor(base64.RawURLEncoding.EncodeToString(raw)), nil
}

func decodeCursor(cursor Cursor) (map[string]ddbtypes.AttributeValue, error) {
	raw, err := base64.RawURLEncoding.DecodeString(string(cursor))
	if err != nil {
		return nil, errors.Join(ErrInvalidCursor, err)
	}

	var flat map[string]string
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, errors.Join(ErrInvalidCursor, err)
	}

	key, err := attributevalue.MarshalMap(flat)
	if err != nil {
		return nil, errors.Join(ErrInvalidCursor, err)
	}
	return key, nil
}
