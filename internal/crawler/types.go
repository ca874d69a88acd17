// Package crawler implements the breadth-first topology traversal: starting
// from seed addresses it logs into each device, runs the configured
// neighbor-table commands, parses the output into neighbor records and walks
// the discovered neighbors up to a hop limit.
package crawler

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/topocrawl/topocrawl/internal/validation"
)

// Status is the lifecycle state of a discovered device within one run.
type Status string

const (
	// StatusPending means the device is known but not yet processed.
	StatusPending Status = "pending"
	// StatusReachable means the probe succeeded but no session was opened,
	// for example because the device sits on the hop boundary.
	StatusReachable Status = "reachable"
	// StatusUnreachable means the probe failed; the device contributes no edges.
	StatusUnreachable Status = "unreachable"
	// StatusVisited means the device was logged into and its commands ran.
	StatusVisited Status = "visited"
	// StatusFailed means the device answered the probe but could not be
	// queried, typically because every credential was rejected.
	StatusFailed Status = "failed"
)

// FailureKind classifies per-device failures. A failure never aborts the
// run; it becomes an entry in Result.Failures.
type FailureKind string

const (
	FailureUnreachableHost FailureKind = "unreachable_host"
	FailureAuthExhausted   FailureKind = "auth_exhausted"
	FailureCommandTimeout  FailureKind = "command_timeout"
	FailureCommandError    FailureKind = "command_error"
)

// Device is one node of the discovered topology. It is created on first
// reference, as a seed or as a reported neighbor, and never removed during
// a run.
type Device struct {
	// ID is the canonical identity: the normalized advertised system name
	// for neighbors, or the normalized seed string for seeds.
	ID            string `json:"id"`
	Hostname      string `json:"hostname,omitempty"`
	Platform      string `json:"platform,omitempty"`
	MgmtAddr      string `json:"mgmt_addr,omitempty"`
	Hop           int    `json:"hop"`
	Status        Status `json:"status"`
	DiscoveredVia string `json:"discovered_via,omitempty"` // parent device id, empty for seeds
	Credential    string `json:"credential,omitempty"`     // name of the credential that worked
	SysDescr      string `json:"sys_descr,omitempty"`      // SNMP enrichment for unqueryable devices
}

// Edge is one link between two devices. Protocols lists every protocol that
// reported the link, in arrival order.
type Edge struct {
	LocalID         string   `json:"local_id"`
	LocalInterface  string   `json:"local_interface,omitempty"`
	RemoteID        string   `json:"remote_id"`
	RemoteInterface string   `json:"remote_interface,omitempty"`
	Protocols       []string `json:"protocols"`
}

// Key returns the deduplication key: both (device, interface) endpoints in
// normalized form, ordered so the two directions of the same physical link
// collapse onto one key.
func (e Edge) Key() string {
	a := e.LocalID + "|" + NormalizeInterface(e.LocalInterface)
	b := e.RemoteID + "|" + NormalizeInterface(e.RemoteInterface)
	if a > b {
		a, b = b, a
	}
	return a + "||" + b
}

// Failure records one device that could not be reached, authenticated or
// queried, and why.
type Failure struct {
	DeviceID string      `json:"device_id"`
	Kind     FailureKind `json:"kind"`
	Detail   string      `json:"detail,omitempty"`
}

// Result is the outcome of one discovery run. The engine owns it exclusively
// while the run executes; callers must treat it as read-only afterwards.
type Result struct {
	RunID       uuid.UUID          `json:"run_id"`
	Seeds       []string           `json:"seeds"`
	MaxHops     int                `json:"max_hops"`
	Devices     map[string]*Device `json:"devices"`
	Edges       []Edge             `json:"edges"`
	Failures    []Failure          `json:"failures"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt time.Time          `json:"completed_at"`
}

// Device returns the device entry for id, or nil.
func (r *Result) Device(id string) *Device {
	return r.Devices[NormalizeDeviceID(id)]
}

// Mapped returns the devices that were actually visited, ordered by hop and
// then id so output is stable.
func (r *Result) Mapped() []*Device {
	out := make([]*Device, 0, len(r.Devices))
	for _, d := range r.Devices {
		if d.Status == StatusVisited {
			out = append(out, d)
		}
	}
	sortDevices(out)
	return out
}

// All returns every device entry ordered by hop and then id.
func (r *Result) All() []*Device {
	out := make([]*Device, 0, len(r.Devices))
	for _, d := range r.Devices {
		out = append(out, d)
	}
	sortDevices(out)
	return out
}

func sortDevices(devs []*Device) {
	for i := 1; i < len(devs); i++ {
		for j := i; j > 0; j-- {
			a, b := devs[j-1], devs[j]
			if a.Hop < b.Hop || (a.Hop == b.Hop && a.ID <= b.ID) {
				break
			}
			devs[j-1], devs[j] = b, a
		}
	}
}

// ProgressEvent is emitted once per processed device.
type ProgressEvent struct {
	RunID    uuid.UUID `json:"run_id"`
	DeviceID string    `json:"device_id"`
	Addr     string    `json:"addr,omitempty"`
	Status   Status    `json:"status"`
	Hop      int       `json:"hop"`
	Detail   string    `json:"detail,omitempty"`
}

// Observer receives progress events during a run. It is called from the
// engine's own goroutine and must not block.
type Observer func(ProgressEvent)

// Options are the per-engine defaults for a run. A Request may narrow them.
type Options struct {
	// MaxHops bounds the traversal depth; 0 visits only the seeds.
	MaxHops int
	// CommandTimeout bounds each command execution on a live session.
	CommandTimeout time.Duration
	// Commands are the neighbor-table commands executed on every device, in
	// order. All of them are always attempted.
	Commands []string
	// Preference ranks protocols for edge tie-breaking: when two protocols
	// report the same link with different interface spellings, the earlier
	// protocol's spelling wins.
	Preference []string
}

// DefaultCommands are the neighbor-table commands used when none are
// configured. Both are always run: a device may expose its neighbors via
// only one of the two protocols.
func DefaultCommands() []string {
	return []string{"show cdp neighbors detail", "show lldp neighbors detail"}
}

// DefaultPreference returns the default protocol trust order.
func DefaultPreference() []string {
	return []string{"cdp", "lldp"}
}

func (o Options) withDefaults() Options {
	if o.MaxHops < 0 {
		o.MaxHops = 0
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 30 * time.Second
	}
	if len(o.Commands) == 0 {
		o.Commands = DefaultCommands()
	}
	if len(o.Preference) == 0 {
		o.Preference = DefaultPreference()
	}
	return o
}

// Request describes one crawl as submitted by a caller. Zero-valued optional
// fields fall back to the engine's configured defaults.
type Request struct {
	Seeds    []string `json:"seeds" validate:"required,min=1,dive,required"`
	MaxHops  *int     `json:"max_hops,omitempty" validate:"omitempty,gte=0,lte=32"`
	Commands []string `json:"commands,omitempty" validate:"omitempty,dive,required"`
}

// Validate checks the request shape and the seed syntax.
func (r Request) Validate() error {
	type plain Request // drops the method set so Struct does not recurse
	if err := validation.Struct(plain(r)); err != nil {
		return err
	}
	for _, seed := range r.Seeds {
		if err := ValidateSeed(seed); err != nil {
			return err
		}
	}
	return nil
}

// NormalizeDeviceID canonicalizes an advertised device name or address so
// the same device reported with different casing or decorations maps onto
// one identity. NX-OS appends the chassis serial in parentheses; some
// platforms advertise a trailing dot on the FQDN.
func NormalizeDeviceID(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	if i := strings.IndexByte(name, '('); i > 0 {
		name = name[:i]
	}
	return strings.TrimSuffix(name, ".")
}

// interfaceShortNames maps long interface prefixes to the short spelling
// used for edge comparison. Longer prefixes are listed first so
// "TenGigabitEthernet" never matches the plain "Ethernet" entry.
var interfaceShortNames = []struct{ long, short string }{
	{"twentyfivegigabitethernet", "twe"},
	{"hundredgigabitethernet", "hu"},
	{"fortygigabitethernet", "fo"},
	{"twogigabitethernet", "tw"},
	{"tengigabitethernet", "te"},
	{"gigabitethernet", "gi"},
	{"twentyfivegige", "twe"},
	{"fastethernet", "fa"},
	{"hundredgige", "hu"},
	{"port-channel", "po"},
	{"fortygige", "fo"},
	{"management", "mgmt"},
	{"ethernet", "eth"},
	{"loopback", "lo"},
	{"tengige", "te"},
	{"serial", "se"},
	{"vlan", "vl"},
}

// NormalizeInterface reduces an interface name to a comparable form: spaces
// stripped, lowercased, long prefix replaced with its short spelling. CDP
// tends to report "GigabitEthernet1/0/24" where LLDP says "Gi1/0/24"; both
// normalize to "gi1/0/24".
func NormalizeInterface(name string) string {
	name = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", ""))
	for _, e := range interfaceShortNames {
		if rest, ok := strings.CutPrefix(name, e.long); ok {
			return e.short + rest
		}
	}
	return name
}

// ProtocolForCommand derives the protocol label used on edges from the
// command that produced the records.
func ProtocolForCommand(command string) string {
	c := strings.ToLower(command)
	switch {
	case strings.Contains(c, "cdp"):
		return "cdp"
	case strings.Contains(c, "lldp"):
		return "lldp"
	default:
		return "unknown"
	}
}

// protocolRank returns the position of proto in the preference order;
// unranked protocols sort after every ranked one.
func protocolRank(pref []string, proto string) int {
	for i, p := range pref {
		if p == proto {
			return i
		}
	}
	return len(pref)
}

// Field names the parse templates must populate for a record to describe a
// usable neighbor.
const (
	FieldNeighborName      = "NEIGHBOR_NAME"
	FieldMgmtAddress       = "MGMT_ADDRESS"
	FieldPlatform          = "PLATFORM"
	FieldLocalInterface    = "LOCAL_INTERFACE"
	FieldNeighborInterface = "NEIGHBOR_INTERFACE"
)

// String implements fmt.Stringer for log lines.
func (f Failure) String() string {
	if f.Detail == "" {
		return fmt.Sprintf("%s: %s", f.DeviceID, f.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", f.DeviceID, f.Kind, f.Detail)
}
