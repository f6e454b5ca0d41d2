// Package api exposes the cluster host's HTTP control surface: node
// introspection and memory access, firmware loading, topology deployment,
// and SNN lifecycle control, all routed through the standard library's
// http.ServeMux.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/neurofab/z1cluster/pkg/api/apierr"
	"github.com/neurofab/z1cluster/pkg/backplane"
	"github.com/neurofab/z1cluster/pkg/cluster"
	"github.com/neurofab/z1cluster/pkg/compiler"
	"github.com/neurofab/z1cluster/pkg/config"
	"github.com/neurofab/z1cluster/pkg/memory"
	"github.com/neurofab/z1cluster/pkg/node"
	"github.com/neurofab/z1cluster/pkg/snn"
)

const apiVersion = "1.0.0"

// Server is the cluster host's HTTP/REST API server.
type Server struct {
	cluster     *cluster.Cluster
	coordinator *snn.Coordinator
	config      *config.Config

	httpServer *http.Server
	addr       string

	topoMu   sync.RWMutex
	topology *compiler.TopologyDoc
	plan     *compiler.Plan
}

// NewServer wires a Server around an already-populated cluster and
// coordinator.
func NewServer(addr string, cl *cluster.Cluster, co *snn.Coordinator, cfg *config.Config) *Server {
	s := &Server{
		cluster:     cl,
		coordinator: co,
		config:      cfg,
		addr:        addr,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/api/nodes", s.handleNodes)
	mux.HandleFunc("/api/nodes/", s.handleNodeSubpath)

	mux.HandleFunc("/api/snn/deploy", s.handleSNNDeploy)
	mux.HandleFunc("/api/snn/topology", s.handleSNNTopology)
	mux.HandleFunc("/api/snn/start", s.handleSNNStart)
	mux.HandleFunc("/api/snn/stop", s.handleSNNStop)
	mux.HandleFunc("/api/snn/activity", s.handleSNNActivity)
	mux.HandleFunc("/api/snn/events", s.handleSNNEvents)
	mux.HandleFunc("/api/snn/input", s.handleSNNInput)

	mux.HandleFunc("/api/emulator/status", s.handleEmulatorStatus)
	mux.HandleFunc("/api/emulator/reset", s.handleEmulatorReset)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.withMiddleware(mux),
		ReadTimeout:  cfg.Security.ReadTimeout,
		WriteTimeout: cfg.Security.WriteTimeout,
	}

	return s
}

// withMiddleware adds CORS, request body limiting, and request logging.
func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			allowed := s.config.Security.AllowedOrigins == "*"
			if !allowed {
				for _, o := range strings.Split(s.config.Security.AllowedOrigins, ",") {
					if strings.TrimSpace(o) == origin {
						allowed = true
						break
					}
				}
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		if s.config.Security.MaxRequestBody > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.config.Security.MaxRequestBody)
		}

		w.Header().Set("Content-Type", "application/json")

		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// writeOperationError maps domain sentinel errors to the apierr envelope.
func (s *Server) writeOperationError(w http.ResponseWriter, err error) {
	var compileErr *compiler.Error
	switch {
	case errors.Is(err, memory.ErrOutOfBounds):
		apierr.BadRequest(w, apierr.CodeOutOfBounds, err.Error())
	case errors.Is(err, memory.ErrFirmwareTooShort), errors.Is(err, memory.ErrFirmwareMagicMismatch):
		apierr.BadRequest(w, apierr.CodeInvalidContent, err.Error())
	case errors.Is(err, cluster.ErrBackplaneNotFound):
		apierr.NotFound(w, apierr.CodeBackplaneNotFound, err.Error())
	case errors.Is(err, backplane.ErrNodeNotFound), errors.Is(err, node.ErrNotFound):
		apierr.NodeNotFound(w, err.Error())
	case errors.Is(err, snn.ErrNeuronNotFound):
		apierr.NeuronNotFound(w, err.Error())
	case errors.As(err, &compileErr):
		apierr.BadRequest(w, apierr.CodeInvalidTopology, err.Error())
	default:
		apierr.Internal(w, err.Error())
	}
}

func (s *Server) decodeJSONRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierr.PayloadTooLarge(w, err.Error())
			return false
		}
		apierr.InvalidJSON(w)
		return false
	}
	return true
}

// Start begins serving. It blocks until the server stops or fails.
func (s *Server) Start() error {
	log.Printf("cluster host API starting on %s", s.addr)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ---------------------------------------------------------------------------
// Flattened node addressing
//
// The wire NodeInfo carries both a flat "id" (for URL addressing) and the
// node's true physical (backplane_id, node_id) pair. The flat space is the
// cross product of every registered backplane's nodes, in sorted backplane-
// name then node-id order — stable as long as the cluster's topology of
// backplanes/nodes doesn't change between calls.
// ---------------------------------------------------------------------------

type flatNode struct {
	FlatID    int
	Backplane string
	NodeID    int
	Node      *node.Node
}

func (s *Server) flattenNodes() []flatNode {
	var out []flatNode
	id := 0
	for _, name := range s.cluster.BackplaneNames() {
		bp, err := s.cluster.GetBackplane(name)
		if err != nil {
			continue
		}
		for _, nodeID := range bp.NodeIDs() {
			n, err := bp.GetNode(nodeID)
			if err != nil {
				continue
			}
			out = append(out, flatNode{FlatID: id, Backplane: name, NodeID: nodeID, Node: n})
			id++
		}
	}
	return out
}

func (s *Server) resolveFlatNode(flatID int) (flatNode, bool) {
	for _, fn := range s.flattenNodes() {
		if fn.FlatID == flatID {
			return fn, true
		}
	}
	return flatNode{}, false
}

// ---------------------------------------------------------------------------
// NodeInfo wire shape
// ---------------------------------------------------------------------------

type ledInfo struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

type nodeInfo struct {
	ID          int        `json:"id"`
	NodeID      int        `json:"node_id"`
	BackplaneID string     `json:"backplane_id"`
	Status      string     `json:"status"`
	UptimeMs    int64      `json:"uptime_ms"`
	MemoryFree  int        `json:"memory_free"`
	LED         ledInfo    `json:"led_state"`
	Stats       node.Stats `json:"stats"`
	NeuronCount int        `json:"neuron_count"`
}

func toNodeInfo(flatID int, info node.Info) nodeInfo {
	return nodeInfo{
		ID:          flatID,
		NodeID:      info.ID,
		BackplaneID: info.BackplaneID,
		Status:      info.Status,
		UptimeMs:    info.UptimeMs,
		MemoryFree:  info.MemoryFree,
		LED:         ledInfo{R: info.LED.R, G: info.LED.G, B: info.LED.B},
		Stats:       info.Stats,
		NeuronCount: info.NeuronCount,
	}
}

// ---------------------------------------------------------------------------
// /api/nodes
// ---------------------------------------------------------------------------

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apierr.MethodNotAllowed(w)
		return
	}

	flat := s.flattenNodes()
	infos := make([]nodeInfo, 0, len(flat))
	for _, fn := range flat {
		infos = append(infos, toNodeInfo(fn.FlatID, fn.Node.GetInfo()))
	}
	json.NewEncoder(w).Encode(map[string]any{"nodes": infos})
}

// handleNodeSubpath dispatches every /api/nodes/{id}[/action] request.
func (s *Server) handleNodeSubpath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/nodes/")
	parts := strings.SplitN(strings.Trim(rest, "/"), "/", 2)
	if parts[0] == "" {
		apierr.NotFound(w, apierr.CodeNotFound, "node id required")
		return
	}

	flatID, err := strconv.Atoi(parts[0])
	if err != nil {
		apierr.BadRequest(w, apierr.CodeBadRequest, "node id must be an integer")
		return
	}
	fn, ok := s.resolveFlatNode(flatID)
	if !ok {
		apierr.NodeNotFound(w, "node not found")
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		json.NewEncoder(w).Encode(toNodeInfo(fn.FlatID, fn.Node.GetInfo()))
	case action == "reset" && r.Method == http.MethodPost:
		fn.Node.Reset()
		json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	case action == "memory" && r.Method == http.MethodGet:
		s.handleNodeMemoryRead(w, r, fn)
	case action == "memory" && r.Method == http.MethodPost:
		s.handleNodeMemoryWrite(w, r, fn)
	case action == "firmware" && r.Method == http.MethodGet:
		s.handleNodeFirmwareInfo(w, fn)
	case action == "firmware" && r.Method == http.MethodPost:
		s.handleNodeFirmwareFlash(w, r, fn)
	case action == "stats" && r.Method == http.MethodGet:
		s.handleNodeStatsSnapshot(w, fn)
	default:
		apierr.NotFound(w, apierr.CodeNotFound, "unknown node action")
	}
}

func (s *Server) handleNodeMemoryRead(w http.ResponseWriter, r *http.Request, fn flatNode) {
	addr, err := strconv.ParseUint(r.URL.Query().Get("addr"), 10, 32)
	if err != nil {
		apierr.BadRequest(w, apierr.CodeBadRequest, "addr query parameter must be an unsigned integer")
		return
	}
	length, err := strconv.Atoi(r.URL.Query().Get("length"))
	if err != nil || length < 0 {
		apierr.BadRequest(w, apierr.CodeBadRequest, "length query parameter must be a non-negative integer")
		return
	}

	data, err := fn.Node.ReadMemory(uint32(addr), length)
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"addr":   addr,
		"length": length,
		"data":   base64.StdEncoding.EncodeToString(data),
	})
}

func (s *Server) handleNodeMemoryWrite(w http.ResponseWriter, r *http.Request, fn flatNode) {
	var req struct {
		Addr uint32 `json:"addr"`
		Data string `json:"data"`
	}
	if !s.decodeJSONRequest(w, r, &req) {
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		apierr.BadRequest(w, apierr.CodeInvalidContent, "data must be base64-encoded")
		return
	}

	written, err := fn.Node.WriteMemory(req.Addr, data)
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"status": "ok", "bytes_written": written})
}

func (s *Server) handleNodeFirmwareInfo(w http.ResponseWriter, fn flatNode) {
	hdr, ok := fn.Node.FirmwareHeader()
	if !ok {
		json.NewEncoder(w).Encode(map[string]any{"name": "None", "version": 0})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"name":          hdr.Name,
		"version":       hdr.Version,
		"description":   hdr.Description,
		"firmware_size": hdr.FirmwareSize,
		"crc32":         hdr.CRC32,
	})
}

func (s *Server) handleNodeFirmwareFlash(w http.ResponseWriter, r *http.Request, fn flatNode) {
	var req struct {
		Firmware string `json:"firmware"`
	}
	if !s.decodeJSONRequest(w, r, &req) {
		return
	}
	blob, err := base64.StdEncoding.DecodeString(req.Firmware)
	if err != nil {
		apierr.BadRequest(w, apierr.CodeInvalidContent, "firmware must be base64-encoded")
		return
	}

	if _, err := fn.Node.LoadFirmware(blob); err != nil {
		s.writeOperationError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
}

// handleNodeStatsSnapshot serves the node's stats counters msgpack-encoded,
// for introspection tooling that wants the compact wire form instead of the
// JSON shape embedded in GET /api/nodes/{id}.
func (s *Server) handleNodeStatsSnapshot(w http.ResponseWriter, fn flatNode) {
	blob, err := fn.Node.StatsSnapshot()
	if err != nil {
		s.writeOperationError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/msgpack")
	w.Write(blob)
}

// ---------------------------------------------------------------------------
// /api/snn/*
// ---------------------------------------------------------------------------

// handleSNNDeploy stores a topology document for later retrieval. It also
// compiles the document against the cluster's current shape purely to
// validate it end to end (unknown layers, unmapped neurons, oversized
// spans); the resulting plan is kept only for introspection via
// GET /api/snn/topology, never written to node memory here — writing
// compiled tables into PSRAM happens directly against
// /api/nodes/{id}/memory, per the documented flow.
func (s *Server) handleSNNDeploy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		apierr.MethodNotAllowed(w)
		return
	}

	body, ok := s.readAll(w, r)
	if !ok {
		return
	}
	doc, err := compiler.DecodeTopologyDoc(body)
	if err != nil {
		apierr.BadRequest(w, apierr.CodeInvalidTopology, err.Error())
		return
	}

	compileDoc := doc
	if compileDoc.NodeAssignment.Strategy == "" {
		compileDoc.NodeAssignment.Strategy = s.config.Compiler.DefaultStrategy
	}

	cd := s.clusterDescriptor()
	plan, err := compiler.NewCompiler(s.config.Compiler.DefaultSeed).Compile(compileDoc, &cd)
	if err != nil {
		s.writeOperationError(w, err)
		return
	}

	s.topoMu.Lock()
	s.topology = &doc
	s.plan = plan
	s.topoMu.Unlock()

	json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
}

func (s *Server) readAll(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierr.PayloadTooLarge(w, err.Error())
			return nil, false
		}
		apierr.InvalidJSON(w)
		return nil, false
	}
	return data, true
}

func (s *Server) clusterDescriptor() compiler.ClusterDescriptor {
	var cd compiler.ClusterDescriptor
	for _, name := range s.cluster.BackplaneNames() {
		bp, err := s.cluster.GetBackplane(name)
		if err != nil {
			continue
		}
		cd.Backplanes = append(cd.Backplanes, compiler.BackplaneDescriptor{
			Name:      name,
			NodeCount: bp.NodeCount(),
		})
	}
	return cd
}

func (s *Server) handleSNNTopology(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apierr.MethodNotAllowed(w)
		return
	}
	s.topoMu.RLock()
	doc, plan := s.topology, s.plan
	s.topoMu.RUnlock()

	if doc == nil {
		apierr.NoTopology(w)
		return
	}
	resp := map[string]any{"topology": doc}
	if plan != nil {
		resp["plan_id"] = plan.ID
		resp["total_neurons"] = plan.TotalNeurons
		resp["total_synapses"] = plan.TotalSynapses
	}
	json.NewEncoder(w).Encode(resp)
}

// handleSNNStart initializes one engine per (backplane, node) from each
// node's currently-parsed PSRAM neuron table, registers it with the
// coordinator, and starts the coordinator's engines and routing loop.
func (s *Server) handleSNNStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		apierr.MethodNotAllowed(w)
		return
	}
	if s.coordinator.Running() {
		apierr.Conflict(w, apierr.CodeSimRunning, "simulation is already running; stop it first")
		return
	}

	var req struct {
		TimestepUs int64 `json:"timestep_us"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		json.NewDecoder(r.Body).Decode(&req)
	}
	timestepUs := req.TimestepUs
	if timestepUs <= 0 {
		timestepUs = s.config.Sim.DefaultTimestepUs
	}

	for _, fn := range s.flattenNodes() {
		parsed, err := fn.Node.ParseNeuronTable()
		if err != nil {
			s.writeOperationError(w, err)
			return
		}
		e, ok := s.coordinator.Engine(fn.Backplane, fn.NodeID)
		if !ok {
			e = snn.New(fn.Backplane, fn.NodeID)
			s.coordinator.Register(fn.Backplane, fn.NodeID, e)
		}
		e.LoadFromParsed(parsed)
	}

	s.coordinator.StartAll(uint32(timestepUs))
	json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
}

func (s *Server) handleSNNStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		apierr.MethodNotAllowed(w)
		return
	}
	if !s.coordinator.Running() {
		apierr.Conflict(w, apierr.CodeSimNotRunning, "simulation is not running")
		return
	}
	s.coordinator.StopAll()
	json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
}

func (s *Server) handleSNNActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apierr.MethodNotAllowed(w)
		return
	}
	json.NewEncoder(w).Encode(s.coordinator.GlobalActivity())
}

func (s *Server) handleSNNEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apierr.MethodNotAllowed(w)
		return
	}
	count := 100
	if v, err := strconv.Atoi(r.URL.Query().Get("count")); err == nil && v > 0 {
		count = v
	}
	json.NewEncoder(w).Encode(map[string]any{"events": s.coordinator.RecentSpikes(count)})
}

// handleSNNInput injects spikes directly, per-neuron. A request may name
// (backplane, node_id) to address a specific engine; omitted, it falls back
// to the first registered engine whose neuron set contains the id.
func (s *Server) handleSNNInput(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		apierr.MethodNotAllowed(w)
		return
	}

	var req struct {
		Backplane string `json:"backplane,omitempty"`
		NodeID    *int   `json:"node_id,omitempty"`
		Spikes    []struct {
			NeuronID uint16  `json:"neuron_id"`
			Value    float32 `json:"value"`
		} `json:"spikes"`
	}
	if !s.decodeJSONRequest(w, r, &req) {
		return
	}

	injected := 0
	for _, spk := range req.Spikes {
		var e *snn.Engine
		if req.NodeID != nil && req.Backplane != "" {
			var ok bool
			e, ok = s.coordinator.Engine(req.Backplane, *req.NodeID)
			if !ok {
				apierr.NodeNotFound(w, "no engine registered for that backplane/node")
				return
			}
		} else {
			var ok bool
			_, e, ok = s.coordinator.FindEngineForNeuron(spk.NeuronID)
			if !ok {
				apierr.NeuronNotFound(w, "no engine contains that neuron id")
				return
			}
		}
		if err := e.InjectSpike(spk.NeuronID, spk.Value); err != nil {
			s.writeOperationError(w, err)
			return
		}
		injected++
	}
	json.NewEncoder(w).Encode(map[string]any{"status": "ok", "injected": injected})
}

// ---------------------------------------------------------------------------
// /api/emulator/*
// ---------------------------------------------------------------------------

func (s *Server) handleEmulatorStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apierr.MethodNotAllowed(w)
		return
	}

	backplanes := make([]map[string]any, 0)
	for _, name := range s.cluster.BackplaneNames() {
		bp, err := s.cluster.GetBackplane(name)
		if err != nil {
			continue
		}
		backplanes = append(backplanes, map[string]any{
			"name":       name,
			"node_count": bp.NodeCount(),
		})
	}

	json.NewEncoder(w).Encode(map[string]any{
		"emulator": true,
		"version":  apiVersion,
		"cluster_info": map[string]any{
			"backplanes":         backplanes,
			"simulation_running": s.cluster.Running(),
		},
	})
}

func (s *Server) handleEmulatorReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		apierr.MethodNotAllowed(w)
		return
	}

	s.coordinator.StopAll()
	s.cluster.StopSimulation()
	for _, fn := range s.flattenNodes() {
		fn.Node.Reset()
	}

	s.topoMu.Lock()
	s.topology = nil
	s.plan = nil
	s.topoMu.Unlock()

	json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
}
