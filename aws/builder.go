package singletonaws

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/hackborn/singleton"
)

// ------------------------------------------------------------
// AWS-BUILDER

// awsBuilder is a helper class for building DynamoDB API params.
type awsBuilder struct {
	keys       map[string]*dynamodb.AttributeValue
	expression string
	condition  string
	names      map[string]*string
	values     map[string]*dynamodb.AttributeValue
	err        error
}

func (b awsBuilder) key(key string, value interface{}) awsBuilder {
	dst, err := b.marshalToMap(key, value, b.keys)
	b.keys = dst
	b.err = singleton.MergeErr(b.err, err)
	return b
}

// name binds an expression placeholder (i.e. "#a") to an attribute name.
func (b awsBuilder) name(placeholder, attr string) awsBuilder {
	if b.names == nil {
		b.names = make(map[string]*string)
	}
	b.names[placeholder] = aws.String(attr)
	return b
}

func (b awsBuilder) value(placeholder string, value interface{}) awsBuilder {
	dst, err := b.marshalToMap(placeholder, value, b.values)
	b.values = dst
	b.err = singleton.MergeErr(b.err, err)
	return b
}

// stringSet binds a placeholder to a string set, which is what ADD needs.
func (b awsBuilder) stringSet(placeholder string, value ...string) awsBuilder {
	if b.values == nil {
		b.values = make(map[string]*dynamodb.AttributeValue)
	}
	b.values[placeholder] = &dynamodb.AttributeValue{SS: aws.StringSlice(value)}
	return b
}

func (b awsBuilder) marshalToMap(key string, value interface{}, dst map[string]*dynamodb.AttributeValue) (map[string]*dynamodb.AttributeValue, error) {
	if dst == nil {
		dst = make(map[string]*dynamodb.AttributeValue)
	}
	v, err := dynamodbattribute.Marshal(value)
	if err != nil {
		return nil, err
	}
	dst[key] = v
	return dst, nil
}

func (b awsBuilder) get(dst *dynamodb.GetItemInput) {
	if len(b.keys) > 0 {
		dst.Key = b.keys
	}
}

func (b awsBuilder) update(dst *dynamodb.UpdateItemInput) {
	if len(b.keys) > 0 {
		dst.Key = b.keys
	}
	if b.expression != "" {
		dst.UpdateExpression = aws.String(b.expression)
	}
	if b.condition != "" {
		dst.ConditionExpression = aws.String(b.condition)
	}
	if len(b.names) > 0 {
		dst.ExpressionAttributeNames = b.names
	}
	if len(b.values) > 0 {
		dst.ExpressionAttributeValues = b.values
	}
}

func (b awsBuilder) delete(dst *dynamodb.DeleteItemInput) {
	if len(b.keys) > 0 {
		dst.Key = b.keys
	}
	if b.condition != "" {
		dst.ConditionExpression = aws.String(b.condition)
	}
	if len(b.names) > 0 {
		dst.ExpressionAttributeNames = b.names
	}
	if len(b.values) > 0 {
		dst.ExpressionAttributeValues = b.values
	}
}
