package driver

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oculairmedia/graphiti-sub006/pkg/dedup"
	"github.com/oculairmedia/graphiti-sub006/pkg/types"
)

// MemoryStore is an in-memory GraphStore. It backs tests and small local
// runs; its merge primitive applies the same atomic semantics as the Neo4j
// implementation under a single store-wide lock.
type MemoryStore struct {
	mu            sync.RWMutex
	nodes         map[string]*types.EntityNode
	episodes      map[string]*types.EpisodicNode
	entityEdges   map[string]*types.EntityEdge
	episodicEdges map[string]*types.EpisodicEdge
	auditEdges    map[string]*types.DuplicateAuditEdge
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:         make(map[string]*types.EntityNode),
		episodes:      make(map[string]*types.EpisodicNode),
		entityEdges:   make(map[string]*types.EntityEdge),
		episodicEdges: make(map[string]*types.EpisodicEdge),
		auditEdges:    make(map[string]*types.DuplicateAuditEdge),
	}
}

// Close is a no-op.
func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}

func copyNode(node *types.EntityNode) *types.EntityNode {
	clone := *node
	if node.Attributes != nil {
		clone.Attributes = make(map[string]interface{}, len(node.Attributes))
		for k, v := range node.Attributes {
			clone.Attributes[k] = v
		}
	}
	if node.NameEmbedding != nil {
		clone.NameEmbedding = append([]float32(nil), node.NameEmbedding...)
	}
	if node.RetiredAt != nil {
		retired := *node.RetiredAt
		clone.RetiredAt = &retired
	}
	return &clone
}

// GetNode retrieves one entity node by identity.
func (s *MemoryStore) GetNode(ctx context.Context, uuid, groupID string) (*types.EntityNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[uuid]
	if !ok || node.GroupID != groupID {
		return nil, types.ErrNodeNotFound
	}
	return copyNode(node), nil
}

// GetNodes retrieves multiple entity nodes by identity. Unknown uuids are
// skipped.
func (s *MemoryStore) GetNodes(ctx context.Context, uuids []string, groupID string) ([]*types.EntityNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*types.EntityNode, 0, len(uuids))
	for _, uuid := range uuids {
		if node, ok := s.nodes[uuid]; ok && node.GroupID == groupID {
			result = append(result, copyNode(node))
		}
	}
	return result, nil
}

// UpsertNode creates or updates an entity node keyed by identity.
func (s *MemoryStore) UpsertNode(ctx context.Context, node *types.EntityNode) error {
	if err := node.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clone := copyNode(node)
	if existing, ok := s.nodes[node.Uuid]; ok && !existing.CreatedAt.IsZero() {
		clone.CreatedAt = existing.CreatedAt
	} else if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	s.nodes[node.Uuid] = clone
	return nil
}

// ListNodes returns all live entity nodes in a group ordered by normalized
// name.
func (s *MemoryStore) ListNodes(ctx context.Context, groupID string) ([]*types.EntityNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*types.EntityNode
	for _, node := range s.nodes {
		if node.GroupID == groupID && !node.Retired() {
			result = append(result, copyNode(node))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].NormalizedName != result[j].NormalizedName {
			return result[i].NormalizedName < result[j].NormalizedName
		}
		return result[i].Uuid < result[j].Uuid
	})
	return result, nil
}

// SearchCandidates returns live nodes within coarse name or embedding
// distance of the probe, bounded by limit.
func (s *MemoryStore) SearchCandidates(ctx context.Context, groupID, normalizedName string, embedding []float32, limit int) ([]*types.EntityNode, error) {
	if limit <= 0 {
		limit = dedup.DefaultCandidateLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	tokens := dedup.Tokens(normalizedName)
	var result []*types.EntityNode
	for _, node := range s.nodes {
		if node.GroupID != groupID || node.Retired() {
			continue
		}
		if s.coarseMatch(node, normalizedName, tokens, embedding) {
			result = append(result, copyNode(node))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Uuid < result[j].Uuid })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryStore) coarseMatch(node *types.EntityNode, normalizedName string, tokens []string, embedding []float32) bool {
	if node.NormalizedName == normalizedName {
		return true
	}
	for _, token := range tokens {
		if strings.Contains(node.NormalizedName, token) {
			return true
		}
	}
	if len(embedding) > 0 && len(node.NameEmbedding) > 0 {
		// Coarse vector gate, deliberately looser than the matcher's.
		return dedup.CosineSimilarity(embedding, node.NameEmbedding) >= 0.75
	}
	return false
}

// UpsertEpisode persists one episodic node.
func (s *MemoryStore) UpsertEpisode(ctx context.Context, episode *types.EpisodicNode) error {
	if err := episode.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *episode
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	s.episodes[episode.Uuid] = &clone
	return nil
}

// UpsertEntityEdge persists a typed relationship. Endpoints must be live
// entity nodes.
func (s *MemoryStore) UpsertEntityEdge(ctx context.Context, edge *types.EntityEdge) error {
	if err := edge.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, endpoint := range []string{edge.SourceUuid, edge.TargetUuid} {
		node, ok := s.nodes[endpoint]
		if !ok {
			return &types.DataIntegrityError{Uuid: endpoint, Reason: "edge endpoint does not exist"}
		}
		if node.Retired() {
			return &types.DataIntegrityError{Uuid: endpoint, Reason: "edge endpoint is retired"}
		}
	}

	clone := *edge
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	s.entityEdges[edge.Uuid] = &clone
	return nil
}

// UpsertEpisodicEdge persists a MENTIONS edge.
func (s *MemoryStore) UpsertEpisodicEdge(ctx context.Context, edge *types.EpisodicEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if node, ok := s.nodes[edge.EntityUuid]; !ok || node.Retired() {
		return &types.DataIntegrityError{Uuid: edge.EntityUuid, Reason: "mentioned entity missing or retired"}
	}

	clone := *edge
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	s.episodicEdges[edge.Uuid] = &clone
	return nil
}

// EdgesForNode returns every entity edge with the node as either endpoint.
func (s *MemoryStore) EdgesForNode(ctx context.Context, uuid, groupID string) ([]*types.EntityEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*types.EntityEdge
	for _, edge := range s.entityEdges {
		if edge.GroupID == groupID && (edge.SourceUuid == uuid || edge.TargetUuid == uuid) {
			clone := *edge
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Uuid < result[j].Uuid })
	return result, nil
}

// EpisodicEdgesForNode returns every MENTIONS edge pointing at the node.
func (s *MemoryStore) EpisodicEdgesForNode(ctx context.Context, uuid, groupID string) ([]*types.EpisodicEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*types.EpisodicEdge
	for _, edge := range s.episodicEdges {
		if edge.GroupID == groupID && edge.EntityUuid == uuid {
			clone := *edge
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Uuid < result[j].Uuid })
	return result, nil
}

// AuditEdges returns every merge audit edge in the group, for inspection.
func (s *MemoryStore) AuditEdges(ctx context.Context, groupID string) ([]*types.DuplicateAuditEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*types.DuplicateAuditEdge
	for _, edge := range s.auditEdges {
		if edge.GroupID == groupID {
			clone := *edge
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Uuid < result[j].Uuid })
	return result, nil
}

// MergeNodes applies one merge atomically under the store lock.
func (s *MemoryStore) MergeNodes(ctx context.Context, req MergeRequest) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	duplicate, ok := s.nodes[req.DuplicateUuid]
	if !ok || duplicate.GroupID != req.GroupID {
		return 0, &types.DataIntegrityError{Uuid: req.DuplicateUuid, Reason: "duplicate node does not exist"}
	}
	canonical, ok := s.nodes[req.CanonicalUuid]
	if !ok || canonical.GroupID != req.GroupID {
		return 0, &types.DataIntegrityError{Uuid: req.CanonicalUuid, Reason: "canonical node does not exist"}
	}
	if canonical.Retired() {
		return 0, &types.DataIntegrityError{Uuid: req.CanonicalUuid, Reason: "canonical node is retired"}
	}

	rewired := 0
	for _, edge := range s.entityEdges {
		if edge.GroupID != req.GroupID {
			continue
		}
		touched := false
		if edge.SourceUuid == req.DuplicateUuid {
			edge.SourceUuid = req.CanonicalUuid
			touched = true
		}
		if edge.TargetUuid == req.DuplicateUuid {
			edge.TargetUuid = req.CanonicalUuid
			touched = true
		}
		if touched {
			rewired++
		}
	}
	for _, edge := range s.episodicEdges {
		if edge.GroupID == req.GroupID && edge.EntityUuid == req.DuplicateUuid {
			edge.EntityUuid = req.CanonicalUuid
			rewired++
		}
	}

	canonical.Summary = req.MergedSummary
	if req.MergedAttrs != nil {
		canonical.Attributes = make(map[string]interface{}, len(req.MergedAttrs))
		for k, v := range req.MergedAttrs {
			canonical.Attributes[k] = v
		}
	}

	now := time.Now().UTC()
	s.auditEdges[req.AuditEdgeUuid] = &types.DuplicateAuditEdge{
		Uuid:       req.AuditEdgeUuid,
		GroupID:    req.GroupID,
		SourceUuid: req.DuplicateUuid,
		TargetUuid: req.CanonicalUuid,
		CreatedAt:  now,
	}

	if req.Retire == RetireModeHard {
		delete(s.nodes, req.DuplicateUuid)
	} else {
		duplicate.RetiredAt = &now
	}
	return rewired, nil
}
