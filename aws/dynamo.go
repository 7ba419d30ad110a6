package singletonaws

import (
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/hackborn/singleton"
	"github.com/rs/zerolog"
)

// ------------------------------------------------------------
// DYNAMO-STORE

// DynamoStore provides a singleton.Store on AWS DynamoDB. Each lock
// record is an item keyed by the resource name. Attributes are
// strings, or string sets once a value has been appended.
type DynamoStore struct {
	db    dynamodbiface.DynamoDBAPI
	table string
	log   zerolog.Logger
}

// NewDynamoStoreFromSession constructs a store based on the provided AWS session.
func NewDynamoStoreFromSession(opts StoreOpts, sess *session.Session) (*DynamoStore, error) {
	if sess == nil {
		return nil, errSessionRequired
	}
	return NewDynamoStore(opts, dynamodb.New(sess))
}

// NewDynamoStore constructs a store on an existing client.
func NewDynamoStore(opts StoreOpts, db dynamodbiface.DynamoDBAPI) (*DynamoStore, error) {
	if db == nil {
		return nil, errClientRequired
	}
	if opts.Table == "" {
		return nil, errTableRequired
	}
	return &DynamoStore{db: db, table: opts.Table, log: opts.logger()}, nil
}

func (s *DynamoStore) ReadConsistent(key string) (singleton.Attributes, error) {
	start := time.Now()
	b := awsBuilder{}.key(dynamoKeyAttr, key)
	if b.err != nil {
		return nil, wrap(opRead, key, "", b.err)
	}
	params := &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		ConsistentRead: aws.Bool(true),
	}
	b.get(params)
	r, err := s.db.GetItem(params)
	s.trace("consistent get", key, start, err)
	if err != nil {
		return nil, wrap(opRead, key, "", err)
	}
	attrs := make(singleton.Attributes)
	for name, v := range r.Item {
		if name == dynamoKeyAttr || v == nil {
			continue
		}
		switch {
		case v.S != nil:
			attrs[name] = []string{aws.StringValue(v.S)}
		case len(v.SS) > 0:
			attrs[name] = aws.StringValueSlice(v.SS)
		}
	}
	return attrs, nil
}

func (s *DynamoStore) WriteConditional(key, attr, expectedOld, newValue string) error {
	b := awsBuilder{expression: `SET #a = :new`, condition: `#a = :old`}
	b = b.key(dynamoKeyAttr, key).name("#a", attr).value(":new", newValue).value(":old", expectedOld)
	return s.updateItem(opWriteConditional, key, attr, b)
}

func (s *DynamoStore) WriteUnconditional(key, attr, value string, replace bool) error {
	b := awsBuilder{}.key(dynamoKeyAttr, key).name("#a", attr)
	switch {
	case replace && value == "":
		// An unset attribute reads as empty, and not every DynamoDB
		// release accepts empty strings.
		b.expression = `REMOVE #a`
	case replace:
		b.expression = `SET #a = :v`
		b = b.value(":v", value)
	default:
		b.expression = `ADD #a :v`
		b = b.stringSet(":v", value)
	}
	return s.updateItem(opWriteUnconditional, key, attr, b)
}

func (s *DynamoStore) Delete(key string, attrs ...string) error {
	start := time.Now()
	if len(attrs) > 0 {
		b := awsBuilder{}.key(dynamoKeyAttr, key)
		var names []string
		for i, a := range attrs {
			ph := fmt.Sprintf("#a%d", i)
			b = b.name(ph, a)
			names = append(names, ph)
		}
		b.expression = `REMOVE ` + strings.Join(names, ", ")
		return s.updateItem(opDelete, key, "", b)
	}
	b := awsBuilder{}.key(dynamoKeyAttr, key)
	if b.err != nil {
		return wrap(opDelete, key, "", b.err)
	}
	params := &dynamodb.DeleteItemInput{TableName: aws.String(s.table)}
	b.delete(params)
	_, err := s.db.DeleteItem(params)
	s.trace("delete", key, start, err)
	return wrap(opDelete, key, "", err)
}

// updateItem is a convenience wrapper for DynamoDB's UpdateItem().
func (s *DynamoStore) updateItem(op, key, attr string, b awsBuilder) error {
	start := time.Now()
	if b.err != nil {
		return wrap(op, key, attr, b.err)
	}
	params := &dynamodb.UpdateItemInput{TableName: aws.String(s.table)}
	b.update(params)
	_, err := s.db.UpdateItem(params)
	s.trace(op, key, start, err)
	return wrap(op, key, attr, err)
}

func (s *DynamoStore) trace(what, item string, start time.Time, err error) {
	ev := s.log.Debug()
	if err != nil {
		ev = s.log.Debug().Err(err)
	}
	ev.Str("table", s.table).
		Str("item", item).
		Dur("elapsed", time.Since(start)).
		Msg("dynamodb " + what)
}

// ------------------------------------------------------------
// CONST and VAR

const (
	// dynamoKeyAttr is the hash key. It never appears in answered attributes.
	dynamoKeyAttr = "lname"
)
