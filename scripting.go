package singleton

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/hackborn/sqi"
	"github.com/micro-go/lock"
)

// scriptResponse captures the output of every command in a script.
type scriptResponse struct {
	History [][]interface{}
}

// scriptEnv is the world a script runs against: one shared store,
// an oracle the script controls, and a manager per simulated node.
type scriptEnv struct {
	store    Store
	oracle   *scriptOracle
	managers map[string]*Manager
}

func newScriptEnv(s Store) *scriptEnv {
	return &scriptEnv{store: s, oracle: &scriptOracle{alive: make(map[string]bool)}, managers: make(map[string]*Manager)}
}

func (e *scriptEnv) manager(node string) (*Manager, error) {
	if m, ok := e.managers[node]; ok {
		return m, nil
	}
	retry := RetryPolicy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond}
	m, err := NewManager(ManagerOpts{Store: e.store, Oracle: e.oracle, Self: node, Retry: retry})
	if err != nil {
		return nil, err
	}
	e.managers[node] = m
	return m, nil
}

// runScript ingests a string in our script format and answers a
// response holding the output of every command found in the script.
// Answer an error if anything goes wrong with preparing a script (but
// note that I do not answer an error from running a command, all
// output is captured by the script response).
func runScript(_script interface{}, env *scriptEnv) (scriptResponse, error) {
	resp := scriptResponse{}
	script, ok := _script.(string)
	if !ok {
		return resp, ErrBadRequest
	}

	dec := json.NewDecoder(strings.NewReader(script))
	for {
		m := make(map[string]interface{})
		if err := dec.Decode(&m); err == io.EOF {
			break
		} else if err != nil {
			return resp, err
		}
		for k, v := range m {
			r, e := runScriptCommand(k, v, env)
			if e != nil {
				return resp, e
			}
			resp.History = append(resp.History, r)
		}
	}
	return resp, nil
}

func runScriptCommand(command string, script interface{}, env *scriptEnv) ([]interface{}, error) {
	switch command {
	case reclaimCmd:
		return runScriptNode(script, env, func(m *Manager, res string) []interface{} {
			return []interface{}{m.ReclaimStale(res)}
		})
	case acquireCmd:
		return runScriptNode(script, env, func(m *Manager, res string) []interface{} {
			return []interface{}{m.TryAcquire(res)}
		})
	case releaseCmd:
		return runScriptNode(script, env, func(m *Manager, res string) []interface{} {
			m.Release(res, 0)
			return []interface{}{}
		})
	case aliveCmd:
		return runScriptAlive(script, env)
	case recordCmd:
		return runScriptRecord(script, env)
	}
	return nil, errors.New("Unknown script command (" + command + ")")
}

func runScriptNode(script interface{}, env *scriptEnv, fn func(*Manager, string) []interface{}) ([]interface{}, error) {
	req := scriptReq{}
	err := readScriptJson(script, "/req", &req)
	if err != nil {
		return nil, err
	}
	m, err := env.manager(req.Node)
	if err != nil {
		return nil, err
	}
	return fn(m, req.Resource), nil
}

func runScriptAlive(script interface{}, env *scriptEnv) ([]interface{}, error) {
	req := scriptReq{}
	err := readScriptJson(script, "/req", &req)
	if err != nil {
		return nil, err
	}
	env.oracle.set(req.Node, req.Alive)
	return []interface{}{}, nil
}

func runScriptRecord(script interface{}, env *scriptEnv) ([]interface{}, error) {
	req := scriptReq{}
	err := readScriptJson(script, "/req", &req)
	if err != nil {
		return nil, err
	}
	attrs, err := env.store.ReadConsistent(req.Resource)
	if err != nil {
		return []interface{}{"", "", err}, nil
	}
	state, _ := attrs.Value(StateAttr)
	owner, _ := attrs.Value(OwnerAttr)
	return []interface{}{state, owner, nil}, nil
}

func readScriptJson(src interface{}, path string, dst interface{}) error {
	v, err := sqi.Eval(path, src, nil)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// ------------------------------------------------------------
// SCRIPT-REQ

type scriptReq struct {
	Node     string `json:"node,omitempty"`
	Resource string `json:"res,omitempty"`
	Alive    bool   `json:"alive,omitempty"`
}

// ------------------------------------------------------------
// SCRIPT-ORACLE

type scriptOracle struct {
	mutex sync.RWMutex
	alive map[string]bool
}

func (o *scriptOracle) IsAlive(node string) bool {
	defer lock.Read(&o.mutex).Unlock()
	return o.alive[node]
}

func (o *scriptOracle) set(node string, alive bool) {
	defer lock.Write(&o.mutex).Unlock()
	o.alive[node] = alive
}

// ------------------------------------------------------------
// CONST and VAR

const (
	reclaimCmd = "reclaim"
	acquireCmd = "acquire"
	releaseCmd = "release"
	aliveCmd   = "alive"
	recordCmd  = "record"
)
