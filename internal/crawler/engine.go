package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/topocrawl/topocrawl/internal/credentials"
	"github.com/topocrawl/topocrawl/internal/probe"
	"github.com/topocrawl/topocrawl/internal/textfsm"
	"github.com/topocrawl/topocrawl/internal/transport"
)

// Prober answers whether a target is worth a connection attempt. Probe never
// returns an error; an unreachable target is an ordinary result.
type Prober interface {
	Probe(ctx context.Context, host string) probe.Result
}

// Parser turns one command's raw output into neighbor records. Malformed
// output is not an error, it yields an empty slice; the only error is a
// command with no registered template.
type Parser interface {
	Parse(command, output string) ([]textfsm.Record, error)
}

// Identifier labels devices that rejected every credential, typically over
// SNMP. Implementations report ok=false when the device stays anonymous.
type Identifier interface {
	Identify(ctx context.Context, addr string) (probe.SysInfo, bool)
}

// Engine walks the neighbor graph breadth-first. It holds no per-run state:
// everything mutable lives in the run's own state value, so one engine can
// serve any number of sequential or test-parallel runs.
type Engine struct {
	prober   Prober
	client   transport.Client
	creds    *credentials.Store
	parser   Parser
	identify Identifier // nil disables post-failure identification
	opts     Options
	logger   *slog.Logger
}

// NewEngine wires the traversal collaborators together. identify may be nil.
func NewEngine(prober Prober, client transport.Client, creds *credentials.Store, parser Parser, identify Identifier, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		prober:   prober,
		client:   client,
		creds:    creds,
		parser:   parser,
		identify: identify,
		opts:     opts.withDefaults(),
		logger:   logger,
	}
}

// frontierItem is one pending visit: the canonical device id, the address to
// connect to, and the hop distance assigned at discovery time.
type frontierItem struct {
	id   string
	addr string
	hop  int
}

// edgeRef locates a stored edge and remembers how trusted the protocol that
// supplied its interface spellings is.
type edgeRef struct {
	idx  int
	rank int
}

// runState is all mutable state of one traversal. It is owned exclusively by
// the engine's loop for the duration of the run.
type runState struct {
	res       *Result
	opts      Options
	visited   map[string]bool
	frontier  []frontierItem
	edgeIndex map[string]edgeRef
	addrIndex map[string]string // lowercased address -> canonical device id
	observe   Observer
}

// Run executes one discovery. req may narrow the engine defaults; runID is
// generated when nil so callers without a pre-allocated id can pass uuid.Nil.
// On cancellation the partial result accumulated so far is returned together
// with the context error.
func (e *Engine) Run(ctx context.Context, runID uuid.UUID, req Request, observe Observer) (*Result, error) {
	opts := e.opts
	if req.MaxHops != nil {
		opts.MaxHops = *req.MaxHops
	}
	if len(req.Commands) > 0 {
		opts.Commands = req.Commands
	}
	opts = opts.withDefaults()

	// A command without a template could never be interpreted, so the run
	// refuses to start rather than fail on every device.
	for _, command := range opts.Commands {
		if _, err := e.parser.Parse(command, ""); err != nil {
			return nil, fmt.Errorf("verify command %q: %w", command, err)
		}
	}

	seeds, err := ExpandSeeds(req.Seeds)
	if err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		return nil, errors.New("no seed addresses")
	}
	if runID == uuid.Nil {
		runID = uuid.New()
	}

	st := &runState{
		res: &Result{
			RunID:     runID,
			Seeds:     seeds,
			MaxHops:   opts.MaxHops,
			Devices:   make(map[string]*Device),
			StartedAt: time.Now().UTC(),
		},
		opts:      opts,
		visited:   make(map[string]bool),
		edgeIndex: make(map[string]edgeRef),
		addrIndex: make(map[string]string),
		observe:   observe,
	}

	for _, seed := range seeds {
		id := NormalizeDeviceID(seed)
		if _, ok := st.res.Devices[id]; ok {
			continue
		}
		st.res.Devices[id] = &Device{ID: id, MgmtAddr: seed, Status: StatusPending}
		st.rememberAddr(seed, id)
		st.frontier = append(st.frontier, frontierItem{id: id, addr: seed, hop: 0})
	}

	e.logger.InfoContext(ctx, "Crawl started",
		slog.String("run_id", runID.String()),
		slog.Int("seeds", len(seeds)),
		slog.Int("max_hops", opts.MaxHops),
	)

	var runErr error
	for len(st.frontier) > 0 {
		// Cancellation is honored only between devices; a device in flight
		// is always drained and disconnected first.
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		item := st.frontier[0]
		st.frontier = st.frontier[1:]
		e.visit(ctx, st, item)
	}

	st.res.CompletedAt = time.Now().UTC()
	e.logger.InfoContext(ctx, "Crawl finished",
		slog.String("run_id", runID.String()),
		slog.Int("devices", len(st.res.Devices)),
		slog.Int("edges", len(st.res.Edges)),
		slog.Int("failures", len(st.res.Failures)),
		slog.Bool("partial", runErr != nil),
	)
	return st.res, runErr
}

// visit processes one frontier item end to end: probe, connect, run every
// command, merge the parsed neighbors. Exactly one progress event is emitted
// per device on every exit path.
func (e *Engine) visit(ctx context.Context, st *runState, item frontierItem) {
	if st.visited[item.id] {
		return
	}
	st.visited[item.id] = true

	dev := st.res.Devices[item.id]
	if dev == nil {
		dev = &Device{ID: item.id, MgmtAddr: item.addr, Hop: item.hop, Status: StatusPending}
		st.res.Devices[item.id] = dev
	}

	res := e.prober.Probe(ctx, item.addr)
	if !res.Reachable {
		dev.Status = StatusUnreachable
		st.fail(dev, FailureUnreachableHost, fmt.Sprintf("%s did not answer the reachability probe", item.addr))
		e.logger.WarnContext(ctx, "Device unreachable",
			slog.String("device", dev.ID),
			slog.String("addr", item.addr),
			slog.Int("hop", item.hop),
		)
		st.emit(dev, "reachability probe failed")
		return
	}
	if res.Addr != "" {
		dev.MgmtAddr = res.Addr
		st.rememberAddr(res.Addr, dev.ID)
	}
	st.rememberAddr(item.addr, dev.ID)

	// The enqueue path already enforces the hop bound; an item past it is
	// recorded but never used as a connection source.
	if item.hop > st.opts.MaxHops {
		dev.Status = StatusReachable
		st.emit(dev, "past hop limit")
		return
	}

	session, credName, err := e.connect(ctx, item.addr)
	if err != nil {
		dev.Status = StatusFailed
		st.fail(dev, FailureAuthExhausted, err.Error())
		e.identifyAnonymous(ctx, dev, item.addr)
		e.logger.WarnContext(ctx, "All credentials rejected",
			slog.String("device", dev.ID),
			slog.String("addr", item.addr),
		)
		st.emit(dev, "all credentials rejected")
		return
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			e.logger.WarnContext(ctx, "Session close failed",
				slog.String("device", dev.ID),
				slog.String("error", cerr.Error()),
			)
		}
	}()
	dev.Credential = credName

	// Every command is attempted even when an earlier one failed: devices
	// often expose neighbors via only one of the two protocols.
	for _, command := range st.opts.Commands {
		output, err := session.Execute(ctx, command, st.opts.CommandTimeout)
		if err != nil {
			kind := FailureCommandError
			if errors.Is(err, transport.ErrCommandTimeout) {
				kind = FailureCommandTimeout
			}
			st.fail(dev, kind, fmt.Sprintf("%s: %s", command, err))
			e.logger.WarnContext(ctx, "Command failed",
				slog.String("device", dev.ID),
				slog.String("command", command),
				slog.String("error", err.Error()),
			)
			continue
		}

		records, err := e.parser.Parse(command, output)
		if err != nil {
			st.fail(dev, FailureCommandError, fmt.Sprintf("%s: %s", command, err))
			continue
		}
		e.merge(ctx, st, dev, item.hop, ProtocolForCommand(command), records)
	}

	dev.Status = StatusVisited
	e.logger.InfoContext(ctx, "Device visited",
		slog.String("device", dev.ID),
		slog.Int("hop", item.hop),
		slog.String("credential", credName),
	)
	st.emit(dev, "")
}

// connect tries every credential in store order and stops at the first
// session. All rejections exhaust into a single error.
func (e *Engine) connect(ctx context.Context, addr string) (transport.Session, string, error) {
	var lastErr error
	for _, cred := range e.creds.All() {
		session, err := e.client.Connect(ctx, addr, cred)
		if err == nil {
			return session, cred.Name, nil
		}
		lastErr = err
		e.logger.DebugContext(ctx, "Credential rejected",
			slog.String("addr", addr),
			slog.String("credential", cred.Name),
			slog.String("error", err.Error()),
		)
	}
	if lastErr == nil {
		return nil, "", errors.New("no credentials configured")
	}
	return nil, "", fmt.Errorf("all credentials rejected, last error: %w", lastErr)
}

// identifyAnonymous asks the optional identifier to label a device that
// rejected every credential.
func (e *Engine) identifyAnonymous(ctx context.Context, dev *Device, addr string) {
	if e.identify == nil {
		return
	}
	info, ok := e.identify.Identify(ctx, addr)
	if !ok {
		return
	}
	if dev.Hostname == "" {
		dev.Hostname = info.Name
	}
	dev.SysDescr = info.Descr
	e.logger.InfoContext(ctx, "Device identified over SNMP",
		slog.String("device", dev.ID),
		slog.String("sys_name", info.Name),
	)
}

// merge folds one command's records into the result graph: edges always, new
// devices only inside the hop bound.
func (e *Engine) merge(ctx context.Context, st *runState, parent *Device, hop int, proto string, records []textfsm.Record) {
	for _, rec := range records {
		name, _ := rec.Get(FieldNeighborName)
		addrs := rec.All(FieldMgmtAddress)
		nid := st.resolveIdentity(NormalizeDeviceID(name), addrs)
		if nid == "" {
			continue
		}
		if nid == parent.ID {
			// Some platforms report the local chassis in their own table.
			continue
		}

		localIntf, _ := rec.Get(FieldLocalInterface)
		remoteIntf, _ := rec.Get(FieldNeighborInterface)
		st.mergeEdge(Edge{
			LocalID:         parent.ID,
			LocalInterface:  localIntf,
			RemoteID:        nid,
			RemoteInterface: remoteIntf,
			Protocols:       []string{proto},
		})

		platform, _ := rec.Get(FieldPlatform)

		if neighbor, ok := st.res.Devices[nid]; ok {
			// First discovery fixed the hop; later reports only fill gaps.
			if neighbor.Hostname == "" {
				neighbor.Hostname = strings.TrimSpace(name)
			}
			if neighbor.Platform == "" {
				neighbor.Platform = platform
			}
			if neighbor.MgmtAddr == "" && len(addrs) > 0 {
				neighbor.MgmtAddr = addrs[0]
			}
			st.rememberAddrs(nid, addrs)
			continue
		}

		nhop := hop + 1
		if nhop > st.opts.MaxHops {
			// The edge to a device past the bound is kept, the device is not.
			continue
		}

		neighbor := &Device{
			ID:            nid,
			Hostname:      strings.TrimSpace(name),
			Platform:      platform,
			Hop:           nhop,
			Status:        StatusPending,
			DiscoveredVia: parent.ID,
		}
		if len(addrs) > 0 {
			neighbor.MgmtAddr = addrs[0]
		}
		st.res.Devices[nid] = neighbor
		st.rememberAddrs(nid, addrs)

		addr := neighbor.MgmtAddr
		if addr == "" {
			addr = nid
		}
		st.frontier = append(st.frontier, frontierItem{id: nid, addr: addr, hop: nhop})
		e.logger.DebugContext(ctx, "Neighbor enqueued",
			slog.String("device", nid),
			slog.String("via", parent.ID),
			slog.Int("hop", nhop),
			slog.String("protocol", proto),
		)
	}
}

// mergeEdge deduplicates on the normalized endpoint key. When a second
// protocol reports a known link its name joins Protocols, and if it ranks
// higher in the preference order its interface spellings win the display.
func (st *runState) mergeEdge(edge Edge) {
	key := edge.Key()
	proto := edge.Protocols[0]
	ref, ok := st.edgeIndex[key]
	if !ok {
		st.edgeIndex[key] = edgeRef{idx: len(st.res.Edges), rank: protocolRank(st.opts.Preference, proto)}
		st.res.Edges = append(st.res.Edges, edge)
		return
	}

	existing := &st.res.Edges[ref.idx]
	found := false
	for _, p := range existing.Protocols {
		if p == proto {
			found = true
			break
		}
	}
	if !found {
		existing.Protocols = append(existing.Protocols, proto)
	}
	if rank := protocolRank(st.opts.Preference, proto); rank < ref.rank {
		existing.LocalID = edge.LocalID
		existing.LocalInterface = edge.LocalInterface
		existing.RemoteID = edge.RemoteID
		existing.RemoteInterface = edge.RemoteInterface
		ref.rank = rank
		st.edgeIndex[key] = ref
	}
}

// resolveIdentity maps a reported neighbor onto an already-known device when
// any of its management addresses was seen before. Seeds given as bare IPs
// and neighbors advertised by hostname frequently name the same box.
func (st *runState) resolveIdentity(nid string, addrs []string) string {
	if nid == "" {
		return ""
	}
	if _, ok := st.res.Devices[nid]; ok {
		return nid
	}
	for _, a := range addrs {
		if known, ok := st.addrIndex[normalizeAddr(a)]; ok {
			return known
		}
	}
	return nid
}

func (st *runState) rememberAddr(addr, id string) {
	a := normalizeAddr(addr)
	if a == "" {
		return
	}
	if _, ok := st.addrIndex[a]; !ok {
		st.addrIndex[a] = id
	}
}

func (st *runState) rememberAddrs(id string, addrs []string) {
	for _, a := range addrs {
		st.rememberAddr(a, id)
	}
}

func normalizeAddr(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func (st *runState) fail(dev *Device, kind FailureKind, detail string) {
	st.res.Failures = append(st.res.Failures, Failure{DeviceID: dev.ID, Kind: kind, Detail: detail})
}

func (st *runState) emit(dev *Device, detail string) {
	if st.observe == nil {
		return
	}
	st.observe(ProgressEvent{
		RunID:    st.res.RunID,
		DeviceID: dev.ID,
		Addr:     dev.MgmtAddr,
		Status:   dev.Status,
		Hop:      dev.Hop,
		Detail:   detail,
	})
}
