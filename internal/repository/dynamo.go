package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dharsanguruparan/ReelDrop/internal/cloud"
	"github.com/dharsanguruparan/ReelDrop/internal/config"
	"github.com/dharsanguruparan/ReelDrop/internal/model"
	"github.com/dharsanguruparan/ReelDrop/internal/storage"
)

// DynamoRepository stores media records in a DynamoDB table keyed by
// externalId.
type DynamoRepository struct {
	client *dynamodb.Client
	table  string
}

// NewDynamoRepository builds a DynamoDB client from the shared AWS config.
func NewDynamoRepository(ctx context.Context, cfg *config.Config) (*DynamoRepository, error) {
	awsCfg, err := cloud.LoadAWS(ctx, cfg)
	if err != nil {
		return nil, err
	}
	endpoint := cloud.Endpoint(cfg)
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != nil {
			o.BaseEndpoint = endpoint
		}
	})
	return &DynamoRepository{client: client, table: cfg.DynamoTable}, nil
}

// Put writes the whole item; PutItem replaces any previous attributes.
func (r *DynamoRepository) Put(ctx context.Context, rec *model.MediaRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal media record: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put media record: %w", err)
	}
	return nil
}

func (r *DynamoRepository) Get(ctx context.Context, externalID string) (*model.MediaRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            recordKey(externalID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get media record: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, storage.ErrNotFound
	}
	var rec model.MediaRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal media record: %w", err)
	}
	return &rec, nil
}

func (r *DynamoRepository) Delete(ctx context.Context, externalID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.table),
		Key:       recordKey(externalID),
	})
	if err != nil {
		return fmt.Errorf("delete media record: %w", err)
	}
	return nil
}

func recordKey(externalID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"externalId": &types.AttributeValueMemberS{Value: externalID},
	}
}
