package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/google/uuid"
	"github.com/hackborn/singleton"
	singletonaws "github.com/hackborn/singleton/aws"
	singletonmem "github.com/hackborn/singleton/mem"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
)

// daemon holds everything built from a Config.
type daemon struct {
	cfg     Config
	sess    *session.Session
	log     zerolog.Logger
	metrics *singleton.Metrics
}

// awsSession answers the shared AWS session, creating it on first use.
func (d *daemon) awsSession() (*session.Session, error) {
	if d.sess != nil {
		return d.sess, nil
	}
	cfg := aws.NewConfig()
	if d.cfg.AWS.Region != "" {
		cfg = cfg.WithRegion(d.cfg.AWS.Region)
	}
	if d.cfg.AWS.Endpoint != "" {
		cfg = cfg.WithEndpoint(d.cfg.AWS.Endpoint)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	d.sess = sess
	return sess, nil
}

func (d *daemon) storeOpts() (singletonaws.StoreOpts, error) {
	opts := singletonaws.StoreOpts{}
	if err := mapstructure.Decode(d.cfg.Store.Config, &opts); err != nil {
		return opts, err
	}
	opts.Logger = &d.log
	return opts, nil
}

func (d *daemon) newStore() (singleton.Store, error) {
	if d.cfg.Store.Type == StoreTypeMemory {
		return singletonmem.NewStore(), nil
	}
	opts, err := d.storeOpts()
	if err != nil {
		return nil, err
	}
	sess, err := d.awsSession()
	if err != nil {
		return nil, err
	}
	policy := d.cfg.retryPolicy()
	switch d.cfg.Store.Type {
	case StoreTypeSimpleDB:
		s, err := singletonaws.NewSimpleDBStoreFromSession(opts, sess)
		if err == nil && d.cfg.Store.Provision {
			err = singletonaws.ProvisionDomain(s, policy)
		}
		return s, err
	case StoreTypeDynamoDB:
		s, err := singletonaws.NewDynamoStoreFromSession(opts, sess)
		if err == nil && d.cfg.Store.Provision {
			err = singletonaws.ProvisionTable(s, policy)
		}
		return s, err
	}
	return nil, fmt.Errorf("%w: unknown store type %q", singleton.ErrBadRequest, d.cfg.Store.Type)
}

func (d *daemon) newOracle() (singleton.LivenessOracle, error) {
	if d.cfg.Liveness.Type == LivenessTypeEC2 {
		sess, err := d.awsSession()
		if err != nil {
			return nil, err
		}
		return singletonaws.NewEC2OracleFromSession(sess, &d.log)
	}
	return singletonmem.NewStaticOracle(d.cfg.Liveness.Alive...), nil
}

// nodeID answers the configured node, then the identity source.
// A random id is only stable for the life of the process, so a
// restarted node can't reclaim its own lock and has to wait on the
// oracle instead.
func (d *daemon) nodeID() (string, error) {
	if d.cfg.Node != "" {
		return singleton.StaticIdentity(d.cfg.Node).NodeID()
	}
	if d.cfg.Identity == IdentityTypeEC2 {
		sess, err := d.awsSession()
		if err != nil {
			return "", err
		}
		id, err := singletonaws.NewMetadataIdentity(sess)
		if err != nil {
			return "", err
		}
		return id.NodeID()
	}
	return uuid.New().String(), nil
}

func (d *daemon) newManager() (*singleton.Manager, error) {
	store, err := d.newStore()
	if err != nil {
		return nil, err
	}
	oracle, err := d.newOracle()
	if err != nil {
		return nil, err
	}
	self, err := d.nodeID()
	if err != nil {
		return nil, err
	}
	return singleton.NewManager(singleton.ManagerOpts{
		Store:   store,
		Oracle:  oracle,
		Self:    self,
		Retry:   d.cfg.retryPolicy(),
		Logger:  &d.log,
		Metrics: d.metrics,
	})
}

// work answers the exclusive activity: the configured command, or
// simply holding the lock until shutdown.
func (d *daemon) work() singleton.WorkFunc {
	if len(d.cfg.Exec) < 1 {
		return func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		}
	}
	return func(ctx context.Context) error {
		cmd := exec.CommandContext(ctx, d.cfg.Exec[0], d.cfg.Exec[1:]...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		d.log.Info().Strs("exec", d.cfg.Exec).Msg("starting exclusive command")
		return cmd.Run()
	}
}
