package main

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"time"

	"github.com/ghodss/yaml"
	"github.com/hackborn/singleton"
)

// Config is the daemon's YAML configuration file.
type Config struct {
	Resource      string         `json:"resource"`
	Node          string         `json:"node"`     // Static node id. Empty to ask the identity source.
	Identity      IdentityType   `json:"identity"` // Where to find the node id when Node is empty
	PollInterval  Duration       `json:"pollInterval"`
	ReleaseDelay  Duration       `json:"releaseDelay"`
	Retry         RetryConfig    `json:"retry"`
	AWS           AWSConfig      `json:"aws"`
	Store         StoreConfig    `json:"store"`
	Liveness      LivenessConfig `json:"liveness"`
	MetricsListen string         `json:"metricsListen"`
	Exec          []string       `json:"exec"` // Command run while holding the lock
}

type RetryConfig struct {
	MaxAttempts int      `json:"maxAttempts"`
	BaseDelay   Duration `json:"baseDelay"`
}

type AWSConfig struct {
	Region   string `json:"region"`
	Endpoint string `json:"endpoint"`
}

// StoreConfig selects the lock store. Config is decoded into the
// options of the chosen type.
type StoreConfig struct {
	Type      StoreType              `json:"type"`
	Provision bool                   `json:"provision"` // Create the domain or table on startup
	Config    map[string]interface{} `json:"config"`
}

type LivenessConfig struct {
	Type  LivenessType `json:"type"`
	Alive []string     `json:"alive"` // Nodes a static oracle reports alive
}

func (c Config) retryPolicy() singleton.RetryPolicy {
	return singleton.RetryPolicy{MaxAttempts: c.Retry.MaxAttempts, BaseDelay: time.Duration(c.Retry.BaseDelay)}
}

func (c Config) runOpts() singleton.RunOpts {
	return singleton.RunOpts{
		Resource:     c.Resource,
		PollInterval: time.Duration(c.PollInterval),
		ReleaseDelay: time.Duration(c.ReleaseDelay),
	}
}

func (c Config) validate() error {
	if c.Resource == "" {
		return fmt.Errorf("%w: resource is required", singleton.ErrBadRequest)
	}
	switch c.Store.Type {
	case StoreTypeMemory, StoreTypeSimpleDB, StoreTypeDynamoDB:
	default:
		return fmt.Errorf("%w: unknown store type %q", singleton.ErrBadRequest, c.Store.Type)
	}
	switch c.Liveness.Type {
	case LivenessTypeStatic, LivenessTypeEC2:
	default:
		return fmt.Errorf("%w: unknown liveness type %q", singleton.ErrBadRequest, c.Liveness.Type)
	}
	switch c.Identity {
	case IdentityTypeRandom, IdentityTypeEC2:
	default:
		return fmt.Errorf("%w: unknown identity type %q", singleton.ErrBadRequest, c.Identity)
	}
	return nil
}

// loadConfig reads the file at path, or answers the defaults when path is empty.
func loadConfig(path string) (Config, error) {
	if path == "" {
		return parseConfig(nil)
	}
	bs, err := ioutil.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return parseConfig(bs)
}

func parseConfig(bs []byte) (Config, error) {
	cfg := defaultConfig()
	if len(bs) > 0 {
		if err := yaml.Unmarshal(bs, &cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		Identity:      IdentityTypeRandom,
		PollInterval:  Duration(singleton.DefaultPollInterval),
		ReleaseDelay:  Duration(singleton.DefaultReleaseDelay),
		Store:         StoreConfig{Type: StoreTypeMemory},
		Liveness:      LivenessConfig{Type: LivenessTypeStatic},
		MetricsListen: "localhost:9102",
	}
}

// ------------------------------------------------------------
// DURATION

// Duration reads "30s" style strings, or plain numbers as nanoseconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case float64:
		*d = Duration(time.Duration(t))
	case string:
		parsed, err := time.ParseDuration(t)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

// ------------------------------------------------------------
// CONST and VAR

type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeSimpleDB StoreType = "simpledb"
	StoreTypeDynamoDB StoreType = "dynamodb"
)

type LivenessType string

const (
	LivenessTypeStatic LivenessType = "static"
	LivenessTypeEC2    LivenessType = "ec2"
)

type IdentityType string

const (
	IdentityTypeRandom IdentityType = "random"
	IdentityTypeEC2    IdentityType = "ec2"
)
