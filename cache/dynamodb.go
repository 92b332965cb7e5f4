package cache

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoCache implements Cache on a DynamoDB table, for Lambda mode
// where instances share no memory. The table uses "cache_key" as its
// partition key and a "ttl" attribute for DynamoDB's native expiry.
type DynamoCache struct {
	client    *dynamodb.Client
	tableName string
}

// NewDynamoCache creates a DynamoDB-backed cache.
func NewDynamoCache(tableName, region string) (*DynamoCache, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, err
	}
	return &DynamoCache{
		client:    dynamodb.NewFromConfig(cfg),
		tableName: tableName,
	}, nil
}

func dynamoCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// Get fetches the entry; backend errors and expired rows (DynamoDB
// TTL deletion lags) are reported as misses.
func (c *DynamoCache) Get(key string) ([]byte, bool) {
	ctx, cancel := dynamoCtx()
	defer cancel()

	out, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"cache_key": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		log.Printf("[ERROR] DynamoCache Get %s: %v", key, err)
		return nil, false
	}
	if out.Item == nil {
		return nil, false
	}
	if ttlAttr, ok := out.Item["ttl"].(*types.AttributeValueMemberN); ok {
		if exp, err := strconv.ParseInt(ttlAttr.Value, 10, 64); err == nil && exp > 0 {
			if time.Now().Unix() > exp {
				return nil, false
			}
		}
	}
	val, ok := out.Item["value"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, false
	}
	return val.Value, true
}

// Set stores the entry; failures are logged and dropped since the
// cache is advisory.
func (c *DynamoCache) Set(key string, value []byte, ttl time.Duration) {
	ctx, cancel := dynamoCtx()
	defer cancel()

	item := map[string]types.AttributeValue{
		"cache_key": &types.AttributeValueMemberS{Value: key},
		"value":     &types.AttributeValueMemberB{Value: value},
	}
	if ttl > 0 {
		exp := time.Now().Add(ttl).Unix()
		item["ttl"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(exp, 10)}
	}
	_, err := c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	})
	if err != nil {
		log.Printf("[ERROR] DynamoCache Set %s: %v", key, err)
	}
}

// Delete removes the entry; failures are logged and dropped.
func (c *DynamoCache) Delete(key string) {
	ctx, cancel := dynamoCtx()
	defer cancel()

	_, err := c.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"cache_key": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		log.Printf("[ERROR] DynamoCache Delete %s: %v", key, err)
	}
}
