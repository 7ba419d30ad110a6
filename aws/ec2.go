package singletonaws

import (
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/ec2metadata"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/hackborn/singleton"
	"github.com/rs/zerolog"
)

// ------------------------------------------------------------
// EC2-ORACLE

// EC2Oracle is a singleton.LivenessOracle for fleets of EC2 instances,
// where node identifiers are instance ids. An instance is alive only
// while EC2 reports it running with an ok status check.
type EC2Oracle struct {
	ec2 ec2iface.EC2API
	log zerolog.Logger
}

// NewEC2OracleFromSession constructs an oracle based on the provided AWS session.
func NewEC2OracleFromSession(sess *session.Session, log *zerolog.Logger) (*EC2Oracle, error) {
	if sess == nil {
		return nil, errSessionRequired
	}
	return NewEC2Oracle(ec2.New(sess), log)
}

// NewEC2Oracle constructs an oracle on an existing client.
func NewEC2Oracle(client ec2iface.EC2API, log *zerolog.Logger) (*EC2Oracle, error) {
	if client == nil {
		return nil, errClientRequired
	}
	o := &EC2Oracle{ec2: client, log: zerolog.Nop()}
	if log != nil {
		o.log = *log
	}
	return o, nil
}

// IsAlive answers false for an empty id, an unknown instance, and
// any API failure.
func (o *EC2Oracle) IsAlive(node string) bool {
	if strings.TrimSpace(node) == "" {
		return false
	}
	start := time.Now()
	r, err := o.ec2.DescribeInstanceStatus(&ec2.DescribeInstanceStatusInput{
		InstanceIds: aws.StringSlice([]string{node}),
	})
	if err != nil {
		o.log.Warn().
			Err(err).
			Str("instance", node).
			Dur("elapsed", time.Since(start)).
			Msg("can't describe instance status, treating as not running")
		return false
	}
	if len(r.InstanceStatuses) > 0 {
		st := r.InstanceStatuses[0]
		if st.InstanceStatus != nil && st.InstanceState != nil &&
			aws.StringValue(st.InstanceStatus.Status) == ec2.SummaryStatusOk &&
			aws.StringValue(st.InstanceState.Name) == ec2.InstanceStateNameRunning {
			return true
		}
	}
	o.log.Warn().
		Str("instance", node).
		Dur("elapsed", time.Since(start)).
		Msg("instance isn't running")
	return false
}

// ------------------------------------------------------------
// METADATA-IDENTITY

// MetadataIdentity is a singleton.IdentityProvider answering the
// instance id from the EC2 instance metadata service.
type MetadataIdentity struct {
	client metadataClient
}

// NewMetadataIdentity constructs an identity provider based on the provided AWS session.
func NewMetadataIdentity(sess *session.Session) (*MetadataIdentity, error) {
	if sess == nil {
		return nil, errSessionRequired
	}
	return &MetadataIdentity{client: ec2metadata.New(sess)}, nil
}

func (m *MetadataIdentity) NodeID() (string, error) {
	id, err := m.client.GetMetadata(instanceIDPath)
	if err != nil {
		return "", err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", singleton.ErrSelfRequired
	}
	return id, nil
}

// metadataClient is the slice of ec2metadata.EC2Metadata I use.
type metadataClient interface {
	GetMetadata(p string) (string, error)
}

// ------------------------------------------------------------
// CONST and VAR

const (
	instanceIDPath = "instance-id"
)
