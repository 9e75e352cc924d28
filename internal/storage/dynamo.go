package storage

import (
	"context"
	"encoding/base64"
	"fmt"

	"costdash/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/bytedance/sonic"
)

// DynamoAPI DynamoDB 客户端中用到的部分（便于测试替换）
type DynamoAPI interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoOptions DynamoDB 连接参数
type DynamoOptions struct {
	Table     string
	Region    string
	AccessKey string // 与 SecretKey 同时设置时使用静态凭证，否则走默认凭证链
	SecretKey string
	Endpoint  string // 自定义端点（DynamoDB Local）
}

// DynamoStore 基于 DynamoDB 并行扫描（Segment/TotalSegments）的存储
// 不设置 Limit：每页取 DynamoDB 单次返回的上限（1MB）
type DynamoStore struct {
	client DynamoAPI
	table  string
}

// NewDynamoStore 按配置创建客户端；客户端进程级共享，每次调用无状态
func NewDynamoStore(ctx context.Context, opts DynamoOptions) (*DynamoStore, error) {
	if opts.Table == "" {
		return nil, fmt.Errorf("DYNAMODB_TABLE_NAME: %w", ErrNotConfigured)
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	return NewDynamoStoreWithClient(client, opts.Table), nil
}

func NewDynamoStoreWithClient(client DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

func (d *DynamoStore) Validate() error {
	if d.table == "" || d.client == nil {
		return fmt.Errorf("DYNAMODB_TABLE_NAME: %w", ErrNotConfigured)
	}
	return nil
}

func (d *DynamoStore) Ping(ctx context.Context) error {
	_, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(d.table)})
	if err != nil {
		return fmt.Errorf("describe table %s: %w", d.table, err)
	}
	return nil
}

func (d *DynamoStore) ScanSegment(ctx context.Context, req model.ScanRequest) (*model.ScanPage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	input := &dynamodb.ScanInput{
		TableName:     aws.String(d.table),
		Segment:       aws.Int32(int32(req.Segment)),
		TotalSegments: aws.Int32(int32(req.TotalSegments)),
	}
	if req.Cursor != "" {
		startKey, err := decodeDynamoCursor(req.Cursor)
		if err != nil {
			return nil, err
		}
		input.ExclusiveStartKey = startKey
	}
	if req.Since != "" {
		// timestamp 是 DynamoDB 保留字
		input.FilterExpression = aws.String("#ts > :since")
		input.ExpressionAttributeNames = map[string]string{"#ts": "timestamp"}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":since": &types.AttributeValueMemberS{Value: req.Since},
		}
	}

	out, err := d.client.Scan(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("scan segment %d/%d: %w", req.Segment, req.TotalSegments, err)
	}

	page := &model.ScanPage{Items: make([]model.StoredRecord, 0, len(out.Items))}
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &page.Items); err != nil {
		return nil, fmt.Errorf("decode segment %d items: %w", req.Segment, err)
	}
	if len(out.LastEvaluatedKey) > 0 {
		cursor, err := encodeDynamoCursor(out.LastEvaluatedKey)
		if err != nil {
			return nil, err
		}
		page.NextCursor = cursor
	}
	return page, nil
}

// cursorAttr 主键属性的可序列化形态（键只可能是 S/N/B）
type cursorAttr struct {
	S *string `json:"S,omitempty"`
	N *string `json:"N,omitempty"`
	B []byte  `json:"B,omitempty"`
}

func encodeDynamoCursor(key map[string]types.AttributeValue) (string, error) {
	attrs := make(map[string]cursorAttr, len(key))
	for name, v := range key {
		switch av := v.(type) {
		case *types.AttributeValueMemberS:
			attrs[name] = cursorAttr{S: aws.String(av.Value)}
		case *types.AttributeValueMemberN:
			attrs[name] = cursorAttr{N: aws.String(av.Value)}
		case *types.AttributeValueMemberB:
			attrs[name] = cursorAttr{B: av.Value}
		default:
			return "", fmt.Errorf("unsupported key attribute type %T for %s", v, name)
		}
	}
	raw, err := sonic.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeDynamoCursor(cursor string) (map[string]types.AttributeValue, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var attrs map[string]cursorAttr
	if err := sonic.Unmarshal(raw, &attrs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	key := make(map[string]types.AttributeValue, len(attrs))
	for name, a := range attrs {
		switch {
		case a.S != nil:
			key[name] = &types.AttributeValueMemberS{Value: *a.S}
		case a.N != nil:
			key[name] = &types.AttributeValueMemberN{Value: *a.N}
		case a.B != nil:
			key[name] = &types.AttributeValueMemberB{Value: a.B}
		default:
			return nil, fmt.Errorf("%w: empty attribute %s", ErrInvalidCursor, name)
		}
	}
	return key, nil
}
