package source

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ignatij/exectrack/pkg/models"
	"github.com/ignatij/exectrack/pkg/service"
	"github.com/pkg/errors"
)

const (
	defaultAWSRegion = "us-east-1"
	localCredential  = "dummy"
)

// DynamoDBAPI is the part of the DynamoDB client the source needs.
type DynamoDBAPI interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

var (
	_ DynamoDBAPI             = (*dynamodb.Client)(nil)
	_ service.ExecutionSource = (*DynamoDBSource)(nil)
)

// DynamoDBConfig selects the table and how to reach it. Endpoint points the
// client at DynamoDB Local or another emulator.
type DynamoDBConfig struct {
	Table     string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// DynamoDBSource reads the executions table directly.
type DynamoDBSource struct {
	client DynamoDBAPI
	table  string
}

func NewDynamoDBSource(client DynamoDBAPI, table string) *DynamoDBSource {
	return &DynamoDBSource{client: client, table: table}
}

// NewDynamoDBClient builds an SDK client from cfg. Static credentials are
// used when keys are given or a custom endpoint is set; otherwise the
// default AWS credential chain applies.
func NewDynamoDBClient(ctx context.Context, cfg DynamoDBConfig) (*dynamodb.Client, error) {
	region := cfg.Region
	if region == "" {
		region = defaultAWSRegion
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}

	accessKey, secretKey := cfg.AccessKey, cfg.SecretKey
	if cfg.Endpoint != "" {
		if accessKey == "" {
			accessKey = localCredential
		}
		if secretKey == "" {
			secretKey = localCredential
		}
	}
	if accessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")
		opts = append(opts, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}
	client := dynamodb.NewFromConfig(awsCfg, func(options *dynamodb.Options) {
		if cfg.Endpoint != "" {
			options.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return client, nil
}

// ListExecutions scans the whole table, following pagination.
func (s *DynamoDBSource) ListExecutions(ctx context.Context) ([]models.WireRecord, error) {
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName: aws.String(s.table),
	})
	records := []models.WireRecord{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "scan %s", s.table)
		}
		for _, item := range page.Items {
			records = append(records, ConvertItem(item))
		}
	}
	return records, nil
}

// QueryExecution queries the partition of executionID, following pagination.
func (s *DynamoDBSource) QueryExecution(ctx context.Context, executionID string) ([]models.WireRecord, error) {
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                aws.String(s.table),
		KeyConditionExpression:   aws.String(QueryKeyCondition),
		ExpressionAttributeNames: map[string]string{"#execId": models.AttrExecID},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":execId": &types.AttributeValueMemberS{Value: executionID},
		},
	})
	records := []models.WireRecord{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "query %s for execution %s", s.table, executionID)
		}
		for _, item := range page.Items {
			records = append(records, ConvertItem(item))
		}
	}
	return records, nil
}

// ConvertItem maps an SDK item onto the wire record shape.
func ConvertItem(item map[string]types.AttributeValue) models.WireRecord {
	return models.WireRecord{
		ExecID:      convertAttribute(item[models.AttrExecID]),
		ChildExecID: convertAttribute(item[models.AttrChildExecID]),
		Data:        convertAttribute(item[models.AttrData]),
	}
}

// convertAttribute keeps the S, N, BOOL and M arms. Other member types
// (lists, sets, binary, null) have no counterpart and convert to an empty
// value that the normalizer defaults.
func convertAttribute(av types.AttributeValue) models.AttributeValue {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return models.StringAttr(v.Value)
	case *types.AttributeValueMemberN:
		return models.NumberAttr(v.Value)
	case *types.AttributeValueMemberBOOL:
		return models.BoolAttr(v.Value)
	case *types.AttributeValueMemberM:
		m := make(map[string]models.AttributeValue, len(v.Value))
		for k, inner := range v.Value {
			m[k] = convertAttribute(inner)
		}
		return models.AttributeValue{M: m}
	default:
		return models.AttributeValue{}
	}
}
