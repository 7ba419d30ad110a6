package singletonmem

import (
	"sync"

	"github.com/micro-go/lock"
)

// ------------------------------------------------------------
// STATIC-ORACLE

// StaticOracle is a singleton.LivenessOracle that answers from a
// set of nodes the test marks alive. Unknown nodes are dead.
type StaticOracle struct {
	mutex sync.RWMutex
	alive map[string]bool
	asked []string
}

// NewStaticOracle constructs an oracle reporting the supplied nodes alive.
func NewStaticOracle(alive ...string) *StaticOracle {
	o := &StaticOracle{alive: make(map[string]bool)}
	for _, n := range alive {
		o.alive[n] = true
	}
	return o
}

func (o *StaticOracle) IsAlive(node string) bool {
	defer lock.Write(&o.mutex).Unlock()
	o.asked = append(o.asked, node)
	return o.alive[node]
}

// SetAlive marks node alive or dead.
func (o *StaticOracle) SetAlive(node string, alive bool) {
	defer lock.Write(&o.mutex).Unlock()
	if alive {
		o.alive[node] = true
	} else {
		delete(o.alive, node)
	}
}

// Asked answers every node the oracle was asked about, in order.
func (o *StaticOracle) Asked() []string {
	defer lock.Read(&o.mutex).Unlock()
	return append([]string(nil), o.asked...)
}
