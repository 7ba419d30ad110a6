package singletonaws

import (
	"errors"
	"net/http"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/hackborn/singleton"
)

// ------------------------------------------------------------
// CLASSIFICATION

// classify answers the singleton error class of an SDK error, or nil
// for anything the lock protocol should not retry.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var rf awserr.RequestFailure
	if errors.As(err, &rf) {
		switch rf.StatusCode() {
		case http.StatusServiceUnavailable:
			return singleton.ErrServiceUnavailable
		case http.StatusConflict:
			return singleton.ErrConflict
		}
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case sdbConditionalCheckFailed, sdbAttributeDoesNotExist,
			dynamodb.ErrCodeConditionalCheckFailedException:
			return singleton.ErrConflict
		case sdbServiceUnavailable, request.ErrCodeRequestError, request.ErrCodeResponseTimeout,
			dynamodb.ErrCodeProvisionedThroughputExceededException,
			dynamodb.ErrCodeRequestLimitExceeded,
			dynamodb.ErrCodeInternalServerError:
			return singleton.ErrServiceUnavailable
		}
	}
	return nil
}

// wrap answers err as a singleton.StoreError carrying its class.
func wrap(op, key, attr string, err error) error {
	if err == nil {
		return nil
	}
	return singleton.NewStoreError(op, key, attr, classify(err), err)
}

func isAwsErrorCode(err error, code string) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code() == code
	}
	return false
}

// ------------------------------------------------------------
// CONST and VAR

const (
	// SimpleDB error codes. The SDK answers these as plain codes.
	sdbConditionalCheckFailed = "ConditionalCheckFailed"
	sdbAttributeDoesNotExist  = "AttributeDoesNotExist"
	sdbServiceUnavailable     = "ServiceUnavailable"
	sdbNoSuchDomain           = "NoSuchDomain"
)

var (
	errClientRequired  = errors.New("AWS client is required")
	errConditionFailed = errors.New("Condition failed")
	errDomainRequired  = errors.New("Bad request: Domain name required")
	errSessionRequired = errors.New("Session is required")
	errTableRequired   = errors.New("Bad request: Table name required")
)
