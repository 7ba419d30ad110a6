package singletonaws

import (
	"github.com/rs/zerolog"
)

// ------------------------------------------------------------
// STORE-OPTS

// StoreOpts provides standard options when constructing a store.
type StoreOpts struct {
	Domain string          `mapstructure:"domain"` // SimpleDB domain holding the lock items.
	Table  string          `mapstructure:"table"`  // DynamoDB table holding the lock items.
	Logger *zerolog.Logger `mapstructure:"-"`      // Per-call timing is logged at debug level.
}

func (o StoreOpts) logger() zerolog.Logger {
	if o.Logger != nil {
		return *o.Logger
	}
	return zerolog.Nop()
}

// ------------------------------------------------------------
// CONST and VAR

const (
	opRead               = "read-consistent"
	opWriteConditional   = "write-conditional"
	opWriteUnconditional = "write-unconditional"
	opDelete             = "delete"
	opProvision          = "provision"
)
