package singleton

// ------------------------------------------------------------
// ATTRIBUTES

// Attributes is the raw content of a record. Attributes may be
// multi-valued, so each name maps to every stored value.
type Attributes map[string][]string

// Value answers the first value of the named attribute.
func (a Attributes) Value(name string) (string, bool) {
	v, ok := a[name]
	if !ok || len(v) < 1 {
		return "", false
	}
	return v[0], true
}

// Values answers every value of the named attribute.
func (a Attributes) Values(name string) []string {
	return a[name]
}

// Contains answers true if the named attribute holds value.
func (a Attributes) Contains(name, value string) bool {
	for _, v := range a[name] {
		if v == value {
			return true
		}
	}
	return false
}

// ------------------------------------------------------------
// RECORD

// Record is the parsed lock state of a single resource.
type Record struct {
	Exists bool       // False if the store has no attributes for the resource
	Status LockStatus // The STATE attribute
	Owner  string     // The OWNER attribute, empty when unset
}

// ParseRecord answers the lock record held in attrs. STATE and
// OWNER are written independently, so any combination can appear.
func ParseRecord(attrs Attributes) Record {
	r := Record{Exists: len(attrs) > 0}
	r.Owner, _ = attrs.Value(OwnerAttr)
	state, ok := attrs.Value(StateAttr)
	switch {
	case !ok:
		r.Status = StatusUnknown
	case state == stateFree:
		r.Status = StatusFree
	case state == stateHeld:
		r.Status = StatusHeld
	default:
		r.Status = StatusUnknown
	}
	return r
}

// ------------------------------------------------------------
// CONST and VAR

// LockStatus is the persisted STATE of a lock.
type LockStatus int

const (
	StatusUnknown LockStatus = iota // STATE is missing or unreadable
	StatusFree                      // STATE is "0"
	StatusHeld                      // STATE is "1"
)

func (s LockStatus) String() string {
	switch s {
	case StatusFree:
		return "free"
	case StatusHeld:
		return "held"
	}
	return "unknown"
}

// LockState is a lock's status as observed by one node.
type LockState int

const (
	StateUninitialized LockState = iota // No record, or no readable STATE
	StateFree                           // Nobody holds the lock
	StateHeldBySelf                     // The observing node holds the lock
	StateHeldByOther                    // A live node holds the lock
	StateHeldByDead                     // The owner is absent or not alive
)

func (s LockState) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateHeldBySelf:
		return "held-by-self"
	case StateHeldByOther:
		return "held-by-other"
	case StateHeldByDead:
		return "held-by-dead"
	}
	return "uninitialized"
}

const (
	// StateAttr is the guarded attribute; only a conditional write moves it from free to held.
	StateAttr = "STATE"
	// OwnerAttr is diagnostic. It can lag behind STATE.
	OwnerAttr = "OWNER"

	stateFree = "0"
	stateHeld = "1"
)
