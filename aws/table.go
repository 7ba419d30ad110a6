package singletonaws

import (
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/hackborn/singleton"
)

// ------------------------------------------------------------
// PROVISIONING

// ProvisionDomain creates the SimpleDB domain, retrying only while
// SimpleDB is unavailable. Any other failure is answered immediately.
func ProvisionDomain(s *SimpleDBStore, p singleton.RetryPolicy) error {
	if s == nil {
		return singleton.ErrStoreRequired
	}
	return p.WithRetryable(singleton.RetryUnavailable).Do(s.createDomain)
}

// ProvisionTable creates the DynamoDB table if it doesn't exist and
// waits for it to become ready, retrying only while DynamoDB is
// unavailable.
func ProvisionTable(s *DynamoStore, p singleton.RetryPolicy) error {
	if s == nil {
		return singleton.ErrStoreRequired
	}
	return p.WithRetryable(singleton.RetryUnavailable).Do(s.createTable)
}

// ------------------------------------------------------------
// DYNAMO-STORE TABLE MANAGEMENT

// createTable creates my lock table.
func (s *DynamoStore) createTable() error {
	if s.table == "" {
		return errTableRequired
	}
	// Define table
	partitiontype := "S"
	att1 := &dynamodb.AttributeDefinition{
		AttributeName: aws.String(dynamoKeyAttr),
		AttributeType: aws.String(partitiontype),
	}
	key := &dynamodb.KeySchemaElement{
		AttributeName: aws.String(dynamoKeyAttr),
		KeyType:       aws.String("HASH"),
	}
	params := &dynamodb.CreateTableInput{
		TableName:            aws.String(s.table),
		AttributeDefinitions: []*dynamodb.AttributeDefinition{att1},
		KeySchema:            []*dynamodb.KeySchemaElement{key},
		// A lock table sees a handful of requests per poll interval per node.
		ProvisionedThroughput: &dynamodb.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(10),
			WriteCapacityUnits: aws.Int64(5),
		},
	}

	// Create table
	_, err := s.db.CreateTable(params)
	if err != nil {
		// Indicates the table already exists.
		if !isAwsErrorCode(err, dynamodb.ErrCodeResourceInUseException) {
			return wrap(opProvision, s.table, "", err)
		}
	}

	// Wait for table to be ready
	return s.wait(awsReady)
}

// deleteTable deletes my table. Obviously this is an incredibly
// dangerous function; it's used by testing but should not be used otherwise.
func (s *DynamoStore) deleteTable() error {
	if s.table == "" {
		return errTableRequired
	}
	params := &dynamodb.DeleteTableInput{
		TableName: aws.String(s.table),
	}
	_, err := s.db.DeleteTable(params)
	if err != nil {
		if isAwsErrorCode(err, dynamodb.ErrCodeResourceNotFoundException) {
			return nil
		}
		return err
	}
	return s.wait(awsMissing)
}

// tableStatus answers the status of my table.
func (s *DynamoStore) tableStatus() (awsTableStatus, error) {
	params := &dynamodb.DescribeTableInput{
		TableName: aws.String(s.table),
	}
	r, err := s.db.DescribeTable(params)
	if err != nil {
		if isAwsErrorCode(err, dynamodb.ErrCodeResourceNotFoundException) {
			return awsMissing, nil
		}
		return awsMissing, wrap(opProvision, s.table, "", err)
	}
	if r.Table == nil {
		return awsMissing, nil
	}

	switch aws.StringValue(r.Table.TableStatus) {
	case dynamodb.TableStatusCreating:
		return awsCreating, nil
	case dynamodb.TableStatusDeleting:
		return awsDeleting, nil
	default:
		return awsReady, nil
	}
}

// ------------------------------------------------------------
// WAITING

// wait waits for my table to reach want, failing if waitTime elapses.
func (s *DynamoStore) wait(want awsTableStatus) error {
	deadline := time.Now().Add(waitTime)
	for {
		status, err := s.tableStatus()
		if err != nil {
			return err
		}
		if status == want {
			return nil
		}
		if !time.Now().Before(deadline) {
			return errConditionFailed
		}
		time.Sleep(waitPoll)
	}
}

// ------------------------------------------------------------
// CONST and VAR

type awsTableStatus int

const (
	awsMissing  awsTableStatus = iota // The table does not exist
	awsCreating                       // The table is being created
	awsDeleting                       // The table is being deleted
	awsReady                          // The table is ready

	waitTime = 120 * time.Second
	waitPoll = 10 * time.Millisecond
)
