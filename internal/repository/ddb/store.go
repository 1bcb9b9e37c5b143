// Package ddb implements repository.Store on Amazon DynamoDB.
package ddb

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"

	"strivesync-backend/internal/keys"
	"strivesync-backend/internal/repository"
	appErrors "strivesync-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// Client is the subset of the DynamoDB API used by Store. *dynamodb.Client
// satisfies it.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Store executes single-item operations against one table.
type Store struct {
	client Client
	schema repository.Schema
}

var _ repository.Store = (*Store)(nil)

// NewStore creates a Store over client using schema.
func NewStore(client Client, schema repository.Schema) *Store {
	return &Store{client: client, schema: schema}
}

func (s *Store) key(k keys.Primary) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		s.schema.PartitionAttr: &types.AttributeValueMemberS{Value: k.PK},
		s.schema.SortAttr:      &types.AttributeValueMemberS{Value: k.SK},
	}
}

func (s *Store) Put(ctx context.Context, item repository.Item, requireAbsent bool) error {
	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.schema.Table),
		Item:      item,
	}

	if requireAbsent {
		cond := expression.AttributeNotExists(expression.Name(s.schema.PartitionAttr))
		expr, err := expression.NewBuilder().WithCondition(cond).Build()
		if err != nil {
			return appErrors.Wrap(err, "build put condition")
		}
		input.ConditionExpression = expr.Condition()
		input.ExpressionAttributeNames = expr.Names()
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return appErrors.NewAlreadyExistsError("item", describe(item, s.schema))
		}
		return classify("PutItem", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key keys.Primary) (repository.Item, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.schema.Table),
		Key:            s.key(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, classify("GetItem", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return out.Item, nil
}

func (s *Store) Query(ctx context.Context, in repository.QueryInput) iter.Seq2[repository.Item, error] {
	return func(yield func(repository.Item, error) bool) {
		input, err := s.queryInput(in)
		if err != nil {
			yield(nil, err)
			return
		}

		var yielded int32
		paginator := dynamodb.NewQueryPaginator(s.client, input)
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield(nil, classify("Query", err))
				return
			}
			for _, item := range page.Items {
				if !yield(item, nil) {
					return
				}
				yielded++
				if in.Limit > 0 && yielded >= in.Limit {
					return
				}
			}
		}
	}
}

func (s *Store) queryInput(in repository.QueryInput) (*dynamodb.QueryInput, error) {
	partitionAttr, sortAttr := s.schema.PartitionAttr, s.schema.SortAttr
	var indexName *string
	if in.Index != "" {
		idx, ok := s.schema.Index(in.Index)
		if !ok {
			return nil, appErrors.NewInternalError(fmt.Sprintf("unknown index %q", in.Index))
		}
		partitionAttr, sortAttr = idx.PartitionAttr, idx.SortAttr
		indexName = aws.String(idx.Name)
	}

	keyCond := expression.Key(partitionAttr).Equal(expression.Value(in.Partition))
	if in.SortPrefix != "" {
		if sortAttr == "" {
			return nil, appErrors.NewInternalError(fmt.Sprintf("index %q has no sort key", in.Index))
		}
		keyCond = keyCond.And(expression.Key(sortAttr).BeginsWith(in.SortPrefix))
	}

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, appErrors.Wrap(err, "build key condition")
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.schema.Table),
		IndexName:                 indexName,
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(in.ScanForward),
	}
	if in.Limit > 0 {
		input.Limit = aws.Int32(in.Limit)
	}
	return input, nil
}

func (s *Store) Update(ctx context.Context, key keys.Primary, spec repository.UpdateSpec) (repository.Item, error) {
	if spec.Empty() {
		item, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if item == nil && spec.RequireExists {
			return nil, appErrors.NewNotFoundError("item", key.PK+"/"+key.SK)
		}
		return item, nil
	}

	update, conds, err := s.updateExpression(spec)
	if err != nil {
		return nil, err
	}

	builder := expression.NewBuilder().WithUpdate(update)
	if cond, ok := combine(conds); ok {
		builder = builder.WithCondition(cond)
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, appErrors.Wrap(err, "build update expression")
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(s.schema.Table),
		Key:                                 s.key(key),
		UpdateExpression:                    expr.Update(),
		ConditionExpression:                 expr.Condition(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			// The old image tells a missing item apart from a failed guard.
			if len(ccf.Item) == 0 {
				return nil, appErrors.NewNotFoundError("item", key.PK+"/"+key.SK)
			}
			return nil, appErrors.NewConditionFailedError(fmt.Sprintf("update of %s/%s rejected by condition", key.PK, key.SK))
		}
		return nil, classify("UpdateItem", err)
	}
	return out.Attributes, nil
}

func (s *Store) updateExpression(spec repository.UpdateSpec) (expression.UpdateBuilder, []expression.ConditionBuilder, error) {
	var update expression.UpdateBuilder
	var conds []expression.ConditionBuilder

	for _, name := range slices.Sorted(maps.Keys(spec.Set)) {
		update = update.Set(expression.Name(name), expression.Value(spec.Set[name]))
	}
	for _, name := range spec.Remove {
		update = update.Remove(expression.Name(name))
	}

	if c := spec.Counter; c != nil {
		attr := expression.Name(c.Attr)
		update = update.Set(attr, expression.Plus(expression.IfNotExists(attr, expression.Value(0)), expression.Value(c.Delta)))

		if c.Delta > 0 && c.CeilingAttr != "" {
			ceiling := expression.Name(c.CeilingAttr)
			conds = append(conds, expression.Or(
				expression.AttributeNotExists(ceiling),
				ceiling.LessThanEqual(expression.Value(0)),
				expression.AttributeNotExists(attr),
				attr.LessThan(ceiling),
			))
		}
		if c.Delta < 0 && c.Floor {
			conds = append(conds, attr.GreaterThanEqual(expression.Value(-c.Delta)))
		}
	}

	for _, name := range slices.Sorted(maps.Keys(spec.Indexes)) {
		change := spec.Indexes[name]
		idx, ok := s.schema.Index(name)
		if !ok {
			return update, nil, appErrors.NewInternalError(fmt.Sprintf("unknown index %q", name))
		}
		switch change.Action {
		case repository.IndexAdd:
			if change.Key == nil {
				return update, nil, appErrors.NewInternalError("index add without key")
			}
			update = update.Set(expression.Name(idx.PartitionAttr), expression.Value(change.Key.PK))
			if idx.SortAttr != "" {
				update = update.Set(expression.Name(idx.SortAttr), expression.Value(change.Key.SK))
			}
		case repository.IndexRemove:
			update = update.Remove(expression.Name(idx.PartitionAttr))
			if idx.SortAttr != "" {
				update = update.Remove(expression.Name(idx.SortAttr))
			}
		}
	}

	if spec.RequireExists {
		conds = append(conds, expression.AttributeExists(expression.Name(s.schema.PartitionAttr)))
	}
	return update, conds, nil
}

func (s *Store) Delete(ctx context.Context, key keys.Primary, requireExists bool) error {
	input := &dynamodb.DeleteItemInput{
		TableName: aws.String(s.schema.Table),
		Key:       s.key(key),
	}

	if requireExists {
		cond := expression.AttributeExists(expression.Name(s.schema.PartitionAttr))
		expr, err := expression.NewBuilder().WithCondition(cond).Build()
		if err != nil {
			return appErrors.Wrap(err, "build delete condition")
		}
		input.ConditionExpression = expr.Condition()
		input.ExpressionAttributeNames = expr.Names()
	}

	if _, err := s.client.DeleteItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return appErrors.NewNotFoundError("item", key.PK+"/"+key.SK)
		}
		return classify("DeleteItem", err)
	}
	return nil
}

func combine(conds []expression.ConditionBuilder) (expression.ConditionBuilder, bool) {
	switch len(conds) {
	case 0:
		return expression.ConditionBuilder{}, false
	case 1:
		return conds[0], true
	default:
		return expression.And(conds[0], conds[1], conds[2:]...), true
	}
}

// classify maps a DynamoDB or transport failure to StoreUnavailable, keeping
// the service error code and deciding retryability.
func classify(operation string, err error) error {
	appErr := appErrors.NewUnavailableError(operation, err)

	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return appErr
	}

	appErr.Code = ae.ErrorCode()
	switch ae.ErrorCode() {
	case "ProvisionedThroughputExceededException", "RequestLimitExceeded", "ThrottlingException",
		"InternalServerError", "ServiceUnavailable":
		appErr.Retryable = true
	default:
		appErr.Retryable = ae.ErrorFault() == smithy.FaultServer
	}
	return appErr
}

func describe(item repository.Item, schema repository.Schema) string {
	pk, _ := item[schema.PartitionAttr].(*types.AttributeValueMemberS)
	sk, _ := item[schema.SortAttr].(*types.AttributeValueMemberS)
	if pk == nil || sk == nil {
		return "unknown"
	}
	return pk.Value + "/" + sk.Value
}
