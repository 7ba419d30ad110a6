package singletonaws

import (
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/simpledb"
	"github.com/aws/aws-sdk-go/service/simpledb/simpledbiface"
	"github.com/hackborn/singleton"
	"github.com/rs/zerolog"
)

// ------------------------------------------------------------
// SIMPLEDB-STORE

// SimpleDBStore provides a singleton.Store on AWS SimpleDB. Each lock
// record is an item in the domain. SimpleDB is eventually consistent,
// so every read requests ConsistentRead, and conditional writes use
// the single-attribute UpdateCondition it evaluates atomically.
type SimpleDBStore struct {
	db     simpledbiface.SimpleDBAPI
	domain string
	log    zerolog.Logger
}

// NewSimpleDBStoreFromSession constructs a store based on the provided AWS session.
func NewSimpleDBStoreFromSession(opts StoreOpts, sess *session.Session) (*SimpleDBStore, error) {
	if sess == nil {
		return nil, errSessionRequired
	}
	return NewSimpleDBStore(opts, simpledb.New(sess))
}

// NewSimpleDBStore constructs a store on an existing client.
func NewSimpleDBStore(opts StoreOpts, db simpledbiface.SimpleDBAPI) (*SimpleDBStore, error) {
	if db == nil {
		return nil, errClientRequired
	}
	if opts.Domain == "" {
		return nil, errDomainRequired
	}
	return &SimpleDBStore{db: db, domain: opts.Domain, log: opts.logger()}, nil
}

func (s *SimpleDBStore) ReadConsistent(key string) (singleton.Attributes, error) {
	start := time.Now()
	r, err := s.db.GetAttributes(&simpledb.GetAttributesInput{
		DomainName:     aws.String(s.domain),
		ItemName:       aws.String(key),
		ConsistentRead: aws.Bool(true),
	})
	s.trace("consistent get", key, start, err)
	if err != nil {
		return nil, wrap(opRead, key, "", err)
	}
	attrs := make(singleton.Attributes)
	for _, a := range r.Attributes {
		name := aws.StringValue(a.Name)
		attrs[name] = append(attrs[name], aws.StringValue(a.Value))
	}
	return attrs, nil
}

func (s *SimpleDBStore) WriteConditional(key, attr, expectedOld, newValue string) error {
	start := time.Now()
	_, err := s.db.PutAttributes(&simpledb.PutAttributesInput{
		DomainName: aws.String(s.domain),
		ItemName:   aws.String(key),
		Attributes: []*simpledb.ReplaceableAttribute{replaceable(attr, newValue, true)},
		Expected: &simpledb.UpdateCondition{
			Name:   aws.String(attr),
			Value:  aws.String(expectedOld),
			Exists: aws.Bool(true),
		},
	})
	s.trace("conditional put", key, start, err)
	return wrap(opWriteConditional, key, attr, err)
}

func (s *SimpleDBStore) WriteUnconditional(key, attr, value string, replace bool) error {
	start := time.Now()
	_, err := s.db.PutAttributes(&simpledb.PutAttributesInput{
		DomainName: aws.String(s.domain),
		ItemName:   aws.String(key),
		Attributes: []*simpledb.ReplaceableAttribute{replaceable(attr, value, replace)},
	})
	s.trace("put", key, start, err)
	return wrap(opWriteUnconditional, key, attr, err)
}

func (s *SimpleDBStore) Delete(key string, attrs ...string) error {
	start := time.Now()
	params := &simpledb.DeleteAttributesInput{
		DomainName: aws.String(s.domain),
		ItemName:   aws.String(key),
	}
	// No attributes deletes the item.
	for _, a := range attrs {
		params.Attributes = append(params.Attributes, &simpledb.DeletableAttribute{Name: aws.String(a)})
	}
	_, err := s.db.DeleteAttributes(params)
	s.trace("delete", key, start, err)
	return wrap(opDelete, key, "", err)
}

// createDomain creates my domain. SimpleDB answers success for an
// existing domain, so this is safe to repeat.
func (s *SimpleDBStore) createDomain() error {
	start := time.Now()
	_, err := s.db.CreateDomain(&simpledb.CreateDomainInput{DomainName: aws.String(s.domain)})
	s.trace("create domain", s.domain, start, err)
	return wrap(opProvision, s.domain, "", err)
}

// deleteDomain deletes my domain. Used by testing.
func (s *SimpleDBStore) deleteDomain() error {
	_, err := s.db.DeleteDomain(&simpledb.DeleteDomainInput{DomainName: aws.String(s.domain)})
	return err
}

func (s *SimpleDBStore) trace(what, item string, start time.Time, err error) {
	ev := s.log.Debug()
	if err != nil {
		ev = s.log.Debug().Err(err)
	}
	ev.Str("domain", s.domain).
		Str("item", item).
		Dur("elapsed", time.Since(start)).
		Msg("simpledb " + what)
}

// ------------------------------------------------------------
// BOILERPLATE

func replaceable(name, value string, replace bool) *simpledb.ReplaceableAttribute {
	return &simpledb.ReplaceableAttribute{
		Name:    aws.String(name),
		Value:   aws.String(value),
		Replace: aws.Bool(replace),
	}
}
