package graph

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inqgraph/inqgraph/pkg/logging"
	"github.com/inqgraph/inqgraph/pkg/schema"
)

// Store is the in-memory inquiry graph for any number of students.
//
// All access goes through the embedded RWMutex, so a Store is safe for
// concurrent use; the lock is the explicit mutual-exclusion boundary for
// sessions sharing one instance. Reads return deep copies to prevent
// external mutation of indexed state.
type Store struct {
	mu     sync.RWMutex
	schema *schema.Schema
	log    *zap.Logger

	nodes map[string]*Node
	edges map[string]*Edge

	// Indexes for efficient lookups. studentNodes holds each student's
	// node ids in insertion (chronological) order; outgoing and incoming
	// map a node id to its edge ids.
	studentNodes map[string][]string
	studentTypes map[string]map[schema.NodeType]map[string]struct{}
	outgoing     map[string]map[string]struct{}
	incoming     map[string]map[string]struct{}

	closed bool
}

// New creates an empty store validating against s. A nil logger disables
// logging.
func New(s *schema.Schema, log *zap.Logger) *Store {
	return &Store{
		schema:       s,
		log:          logging.OrNop(log).Named("graph"),
		nodes:        make(map[string]*Node),
		edges:        make(map[string]*Edge),
		studentNodes: make(map[string][]string),
		studentTypes: make(map[string]map[schema.NodeType]map[string]struct{}),
		outgoing:     make(map[string]map[string]struct{}),
		incoming:     make(map[string]map[string]struct{}),
	}
}

// Schema returns the schema this store validates against.
func (s *Store) Schema() *schema.Schema { return s.schema }

// AddNode inserts a new node. It fails without mutating any index when the
// id is already present, so a retried insert is a safe no-op.
func (s *Store) AddNode(n *Node) error {
	if n == nil {
		return ErrInvalidData
	}
	if n.ID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, exists := s.nodes[n.ID]; exists {
		return ErrAlreadyExists
	}
	if !s.schema.Ontology.HasNodeType(n.Type) {
		return &SchemaViolationError{SourceID: n.ID, Reason: "unknown node type " + string(n.Type)}
	}

	stored := copyNode(n)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	if stored.State == "" {
		stored.State = StateTentative
	}
	s.nodes[n.ID] = stored

	s.studentNodes[stored.StudentID] = append(s.studentNodes[stored.StudentID], n.ID)
	byType := s.studentTypes[stored.StudentID]
	if byType == nil {
		byType = make(map[schema.NodeType]map[string]struct{})
		s.studentTypes[stored.StudentID] = byType
	}
	if byType[stored.Type] == nil {
		byType[stored.Type] = make(map[string]struct{})
	}
	byType[stored.Type][n.ID] = struct{}{}

	return nil
}

// AddEdge validates and inserts a new edge. Both endpoints must exist and
// (source type, relation) / (relation, target type) must satisfy the
// ontology's declared domain/range; on violation the store is unchanged and
// a *SchemaViolationError is returned. An empty edge ID is assigned a UUID.
func (s *Store) AddEdge(e *Edge) error {
	if e == nil {
		return ErrInvalidData
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if e.ID != "" {
		if _, exists := s.edges[e.ID]; exists {
			return ErrAlreadyExists
		}
	}

	if err := s.validateEdge(e); err != nil {
		s.log.Warn("edge rejected",
			zap.String("source", e.SourceID),
			zap.String("relation", string(e.Relation)),
			zap.String("target", e.TargetID),
			zap.Error(err))
		return err
	}

	stored := copyEdge(e)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
		e.ID = stored.ID
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.edges[stored.ID] = stored

	if s.outgoing[stored.SourceID] == nil {
		s.outgoing[stored.SourceID] = make(map[string]struct{})
	}
	s.outgoing[stored.SourceID][stored.ID] = struct{}{}
	if s.incoming[stored.TargetID] == nil {
		s.incoming[stored.TargetID] = make(map[string]struct{})
	}
	s.incoming[stored.TargetID][stored.ID] = struct{}{}

	return nil
}

// validateEdge checks endpoints and domain/range. Caller holds the lock.
func (s *Store) validateEdge(e *Edge) error {
	src, ok := s.nodes[e.SourceID]
	if !ok {
		return &SchemaViolationError{SourceID: e.SourceID, Relation: e.Relation, TargetID: e.TargetID,
			Reason: "source node does not exist"}
	}
	dst, ok := s.nodes[e.TargetID]
	if !ok {
		return &SchemaViolationError{SourceID: e.SourceID, Relation: e.Relation, TargetID: e.TargetID,
			Reason: "target node does not exist"}
	}
	spec, ok := s.schema.Ontology.RelationSpec(e.Relation)
	if !ok {
		return &SchemaViolationError{SourceID: e.SourceID, Relation: e.Relation, TargetID: e.TargetID,
			Reason: "unknown relation"}
	}
	if !spec.AllowsDomain(src.Type) {
		return &SchemaViolationError{SourceID: e.SourceID, Relation: e.Relation, TargetID: e.TargetID,
			Reason: "domain mismatch: " + string(src.Type) + " cannot be source of " + string(e.Relation)}
	}
	if !spec.AllowsRange(dst.Type) {
		return &SchemaViolationError{SourceID: e.SourceID, Relation: e.Relation, TargetID: e.TargetID,
			Reason: "range mismatch: " + string(dst.Type) + " cannot be target of " + string(e.Relation)}
	}
	return nil
}

// Node returns a copy of the node with the given id.
func (s *Store) Node(id string) (*Node, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	n, ok := s.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyNode(n), nil
}

// UpdateNode applies fn to a copy of the stored node and writes back only
// the mutable fields: Confidence, State and Metadata. Everything else is an
// append-only fact and silently keeps its stored value.
func (s *Store) UpdateNode(id string, fn func(*Node)) error {
	if id == "" {
		return ErrInvalidID
	}
	if fn == nil {
		return ErrInvalidData
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	stored, ok := s.nodes[id]
	if !ok {
		return ErrNotFound
	}

	scratch := copyNode(stored)
	fn(scratch)
	stored.Confidence = scratch.Confidence
	stored.State = scratch.State
	stored.Metadata = scratch.Metadata
	return nil
}

// Neighbors returns copies of the nodes adjacent to id in the given
// direction.
func (s *Store) Neighbors(id string, dir Direction) ([]*Node, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	if _, ok := s.nodes[id]; !ok {
		return nil, ErrNotFound
	}

	seen := make(map[string]struct{})
	out := make([]*Node, 0)
	collect := func(edgeIDs map[string]struct{}, pickTarget bool) {
		for eid := range edgeIDs {
			e := s.edges[eid]
			if e == nil {
				continue
			}
			other := e.SourceID
			if pickTarget {
				other = e.TargetID
			}
			if _, dup := seen[other]; dup {
				continue
			}
			seen[other] = struct{}{}
			if n := s.nodes[other]; n != nil {
				out = append(out, copyNode(n))
			}
		}
	}

	switch dir {
	case DirOut:
		collect(s.outgoing[id], true)
	case DirIn:
		collect(s.incoming[id], false)
	case DirBoth:
		collect(s.outgoing[id], true)
		collect(s.incoming[id], false)
	default:
		return nil, ErrInvalidData
	}
	return out, nil
}

// OutgoingEdges returns copies of all edges starting at id.
func (s *Store) OutgoingEdges(id string) []*Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edgeSet(s.outgoing[id])
}

// IncomingEdges returns copies of all edges ending at id.
func (s *Store) IncomingEdges(id string) []*Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edgeSet(s.incoming[id])
}

func (s *Store) edgeSet(ids map[string]struct{}) []*Edge {
	if s.closed || ids == nil {
		return []*Edge{}
	}
	out := make([]*Edge, 0, len(ids))
	for id := range ids {
		if e := s.edges[id]; e != nil {
			out = append(out, copyEdge(e))
		}
	}
	return out
}

// HasEdge reports whether an edge (src)-[rel]->(dst) exists. An empty rel
// matches any relation.
func (s *Store) HasEdge(src, dst string, rel schema.Relation) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}
	for eid := range s.outgoing[src] {
		e := s.edges[eid]
		if e != nil && e.TargetID == dst && (rel == "" || e.Relation == rel) {
			return true
		}
	}
	return false
}

// FindPath runs a breadth-first search over outgoing edges from startID and
// returns the node-id path to the first node of targetType, or nil if none
// is reachable within maxDepth hops. The visited set makes the search
// terminate on cycles.
func (s *Store) FindPath(startID string, targetType schema.NodeType, maxDepth int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil
	}
	start, ok := s.nodes[startID]
	if !ok {
		return nil
	}
	if start.Type == targetType {
		return []string{startID}
	}

	type queued struct {
		id   string
		path []string
	}
	visited := map[string]struct{}{startID: {}}
	queue := []queued{{id: startID, path: []string{startID}}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if len(cur.path)-1 >= maxDepth {
			continue
		}
		for eid := range s.outgoing[cur.id] {
			e := s.edges[eid]
			if e == nil {
				continue
			}
			if _, dup := visited[e.TargetID]; dup {
				continue
			}
			visited[e.TargetID] = struct{}{}
			next := s.nodes[e.TargetID]
			if next == nil {
				continue
			}
			path := append(append([]string{}, cur.path...), e.TargetID)
			if next.Type == targetType {
				return path
			}
			queue = append(queue, queued{id: e.TargetID, path: path})
		}
	}
	return nil
}

// NodesByStudent returns copies of one student's nodes in creation order.
func (s *Store) NodesByStudent(studentID string) []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return []*Node{}
	}
	ids := s.studentNodes[studentID]
	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		if n := s.nodes[id]; n != nil {
			out = append(out, copyNode(n))
		}
	}
	return out
}

// NodeTypeSequence returns the chronological node-type sequence for one
// student. This is the input to loop detection and pattern mining.
func (s *Store) NodeTypeSequence(studentID string) []schema.NodeType {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil
	}
	ids := s.studentNodes[studentID]
	seq := make([]schema.NodeType, 0, len(ids))
	for _, id := range ids {
		if n := s.nodes[id]; n != nil {
			seq = append(seq, n.Type)
		}
	}
	return seq
}

// nodesOfType returns stored nodes of one type for a student, in creation
// order. Caller holds the lock; returned pointers are the stored values.
func (s *Store) nodesOfType(studentID string, t schema.NodeType) []*Node {
	byType := s.studentTypes[studentID]
	if byType == nil || byType[t] == nil {
		return nil
	}
	out := make([]*Node, 0, len(byType[t]))
	for _, id := range s.studentNodes[studentID] {
		if _, ok := byType[t][id]; ok {
			out = append(out, s.nodes[id])
		}
	}
	return out
}

// NodeCount returns the number of nodes in the store.
func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// EdgeCount returns the number of edges in the store.
func (s *Store) EdgeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges)
}

// Close releases the store; further operations return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.nodes = nil
	s.edges = nil
	s.studentNodes = nil
	s.studentTypes = nil
	s.outgoing = nil
	s.incoming = nil
	return nil
}
