package singleton

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

// RunTestStoreSuite provides scripted testing of the lock protocol
// against a store, allowing chained command lists across several
// simulated nodes. This is the main test function for any store
// implementation: send in a bootstrap on the store for the standard
// testing.
func RunTestStoreSuite(t *testing.T, suites []StoreBootstrap) {
	cases := []struct {
		Script   string
		WantResp scriptResponse
	}{
		// Reclaim a missing record creates it free
		{buildScript(reclaimS("x", "a"), recordS("a")), buildResp(errResp(nil), recResp("0", ""))},
		// Reclaim twice converges
		{buildScript(reclaimS("x", "a"), reclaimS("y", "a"), recordS("a")), buildResp(errResp(nil), errResp(nil), recResp("0", ""))},
		// Acquire an uninitialized lock fails
		{buildScript(acquireS("x", "a")), buildResp(boolResp(false))},
		// Full handoff between two nodes
		{buildScript(reclaimS("x", "a"), acquireS("x", "a"), recordS("a"), acquireS("y", "a"), releaseS("x", "a"), recordS("a"), acquireS("y", "a"), recordS("a")),
			buildResp(errResp(nil), boolResp(true), recResp("1", "x"), boolResp(false), emptyResp(), recResp("0", ""), boolResp(true), recResp("1", "y"))},
		// Acquire a lock I already hold fails
		{buildScript(reclaimS("x", "a"), acquireS("x", "a"), acquireS("x", "a")), buildResp(errResp(nil), boolResp(true), boolResp(false))},
		// Reclaim a dead node's lock
		{buildScript(reclaimS("x", "a"), acquireS("x", "a"), aliveS("x", false), reclaimS("y", "a"), recordS("a"), acquireS("y", "a")),
			buildResp(errResp(nil), boolResp(true), emptyResp(), errResp(nil), recResp("0", ""), boolResp(true))},
		// Leave a live node's lock alone
		{buildScript(reclaimS("x", "a"), acquireS("x", "a"), aliveS("x", true), reclaimS("y", "a"), recordS("a")),
			buildResp(errResp(nil), boolResp(true), emptyResp(), errResp(nil), recResp("1", "x"))},
		// Reclaim my own lock after a restart, even while the oracle thinks I'm alive
		{buildScript(reclaimS("x", "a"), acquireS("x", "a"), aliveS("x", true), reclaimS("x", "a"), recordS("a")),
			buildResp(errResp(nil), boolResp(true), emptyResp(), errResp(nil), recResp("0", ""))},
		// Release a lock that isn't held leaves it free
		{buildScript(reclaimS("x", "a"), releaseS("x", "a"), recordS("a")), buildResp(errResp(nil), emptyResp(), recResp("0", ""))},
		// Locks on different resources are independent
		{buildScript(reclaimS("x", "a"), reclaimS("x", "b"), acquireS("x", "a"), acquireS("y", "b")), buildResp(errResp(nil), errResp(nil), boolResp(true), boolResp(true))},
	}
	for i, tc := range cases {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			for _, b := range suites {
				runTestStore(t, b, tc.Script, tc.WantResp)
			}
		})
	}
}

func runTestStore(t *testing.T, b StoreBootstrap, script string, wantResp scriptResponse) {
	s := b.OpenStore()
	defer b.CloseStore()

	haveResp, err := runScript(script, newScriptEnv(s))
	MustErr(err)
	if !wantResp.equals(haveResp) {
		fmt.Println("Mismatch have\n", haveResp, "\nwant\n", wantResp)
		t.Fatal()
	}
}

// ------------------------------------------------------------
// BUILDING

func buildScript(elem ...interface{}) string {
	var b strings.Builder
	for _, e := range elem {
		data, err := json.Marshal(e)
		MustErr(err)
		b.WriteString(string(data))
	}
	return b.String()
}

func nodeCmd(name, node, res string) interface{} {
	body := make(map[string]interface{})
	body["req"] = scriptReq{Node: node, Resource: res}
	cmd := make(map[string]interface{})
	cmd[name] = body
	return cmd
}

// reclaimS answers a scripting object for a stale lock reclaim by node.
func reclaimS(node, res string) interface{} {
	return nodeCmd(reclaimCmd, node, res)
}

// acquireS answers a scripting object for a lock attempt by node.
func acquireS(node, res string) interface{} {
	return nodeCmd(acquireCmd, node, res)
}

// releaseS answers a scripting object for a lock release by node.
func releaseS(node, res string) interface{} {
	return nodeCmd(releaseCmd, node, res)
}

// recordS answers a scripting object that reads the raw lock record.
func recordS(res string) interface{} {
	return nodeCmd(recordCmd, "", res)
}

// aliveS answers a scripting object that sets a node's liveness.
func aliveS(node string, alive bool) interface{} {
	body := make(map[string]interface{})
	body["req"] = scriptReq{Node: node, Alive: alive}
	cmd := make(map[string]interface{})
	cmd[aliveCmd] = body
	return cmd
}

func buildResp(elem ...[]interface{}) scriptResponse {
	resp := scriptResponse{}
	for _, e := range elem {
		resp.History = append(resp.History, e)
	}
	return resp
}

func errResp(err error) []interface{} {
	return []interface{}{err}
}

func boolResp(ok bool) []interface{} {
	return []interface{}{ok}
}

func recResp(state, owner string) []interface{} {
	return []interface{}{state, owner, nil}
}

func emptyResp() []interface{} {
	return []interface{}{}
}

// ------------------------------------------------------------
// COMPARING

func (a scriptResponse) equals(b scriptResponse) bool {
	if len(a.History) != len(b.History) {
		return false
	}
	for i, ah := range a.History {
		bh := b.History[i]
		if len(ah) != len(bh) {
			return false
		}
		for ii, ahh := range ah {
			if !interfaceEquals(ahh, bh[ii]) {
				return false
			}
		}
	}
	return true
}

func interfaceEquals(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	if a == b {
		return true
	}
	switch aa := a.(type) {
	case error:
		if bb, ok := b.(error); ok {
			return aa.Error() == bb.Error()
		}
	}
	return false
}

// ------------------------------------------------------------
// STORE-BOOTSTRAP

// StoreBootstrap is responsible for initializing and cleaning up a store during testing.
type StoreBootstrap interface {
	OpenStore() Store
	CloseStore() error
}
