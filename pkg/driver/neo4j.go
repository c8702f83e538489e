package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/oculairmedia/graphiti-sub006/pkg/types"
)

// vectorIndexName is the Neo4j vector index over entity name embeddings.
const vectorIndexName = "entity_name_embedding"

// Neo4jStore implements GraphStore against a Neo4j database.
type Neo4jStore struct {
	client   neo4j.DriverWithContext
	database string
}

// NewNeo4jStore connects to a Neo4j instance.
func NewNeo4jStore(uri, username, password, database string) (*Neo4jStore, error) {
	client, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if database == "" {
		database = "neo4j"
	}
	return &Neo4jStore{client: client, database: database}, nil
}

// Close shuts down the underlying driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// EnsureIndexes creates the uniqueness constraints and the name-embedding
// vector index the engine's queries depend on. Idempotent.
func (s *Neo4jStore) EnsureIndexes(ctx context.Context, embeddingDim int) error {
	session := s.newSession(ctx)
	defer session.Close(ctx)

	statements := []string{
		`CREATE CONSTRAINT entity_uuid IF NOT EXISTS FOR (n:Entity) REQUIRE n.uuid IS UNIQUE`,
		`CREATE CONSTRAINT episodic_uuid IF NOT EXISTS FOR (n:Episodic) REQUIRE n.uuid IS UNIQUE`,
		`CREATE INDEX entity_group_name IF NOT EXISTS FOR (n:Entity) ON (n.group_id, n.normalized_name)`,
		fmt.Sprintf(`CREATE VECTOR INDEX %s IF NOT EXISTS
			FOR (n:Entity) ON (n.name_embedding)
			OPTIONS {indexConfig: {`+"`vector.dimensions`"+`: %d, `+"`vector.similarity_function`"+`: 'cosine'}}`,
			vectorIndexName, embeddingDim),
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, stmt := range statements {
			if _, err := tx.Run(ctx, stmt, nil); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return wrapNeo4jError(err)
}

func (s *Neo4jStore) newSession(ctx context.Context) neo4j.SessionWithContext {
	return s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
}

// wrapNeo4jError tags retryable driver errors as transient so callers can
// back off and retry; other errors pass through unchanged.
func wrapNeo4jError(err error) error {
	if err == nil {
		return nil
	}
	if neo4j.IsRetryable(err) {
		return fmt.Errorf("%w: %v", types.ErrTransientBackend, err)
	}
	return err
}

// GetNode retrieves one entity node by identity.
func (s *Neo4jStore) GetNode(ctx context.Context, uuid, groupID string) (*types.EntityNode, error) {
	session := s.newSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n:Entity {uuid: $uuid, group_id: $group_id})
			RETURN n
		`, map[string]any{"uuid": uuid, "group_id": groupID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		return records, nil
	})
	if err != nil {
		return nil, wrapNeo4jError(err)
	}

	records := result.([]*db.Record)
	if len(records) == 0 {
		return nil, types.ErrNodeNotFound
	}
	return entityNodeFromRecord(records[0])
}

// GetNodes retrieves multiple entity nodes by identity.
func (s *Neo4jStore) GetNodes(ctx context.Context, uuids []string, groupID string) ([]*types.EntityNode, error) {
	if len(uuids) == 0 {
		return nil, nil
	}

	session := s.newSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n:Entity {group_id: $group_id})
			WHERE n.uuid IN $uuids
			RETURN n
		`, map[string]any{"uuids": uuids, "group_id": groupID})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, wrapNeo4jError(err)
	}
	return entityNodesFromRecords(result.([]*db.Record))
}

// UpsertNode creates or updates an entity node keyed by identity.
func (s *Neo4jStore) UpsertNode(ctx context.Context, node *types.EntityNode) error {
	if err := node.Validate(); err != nil {
		return err
	}
	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now().UTC()
	}

	session := s.newSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MERGE (n:Entity {uuid: $uuid, group_id: $group_id})
			ON CREATE SET n.created_at = $created_at
			SET n.name = $name,
			    n.normalized_name = $normalized_name,
			    n.summary = $summary,
			    n.attributes = $attributes,
			    n.name_embedding = $name_embedding
		`, map[string]any{
			"uuid":            node.Uuid,
			"group_id":        node.GroupID,
			"name":            node.Name,
			"normalized_name": node.NormalizedName,
			"summary":         node.Summary,
			"attributes":      attributesToJSON(node.Attributes),
			"name_embedding":  embeddingToAny(node.NameEmbedding),
			"created_at":      node.CreatedAt.Format(time.RFC3339Nano),
		})
		return nil, err
	})
	return wrapNeo4jError(err)
}

// ListNodes returns all live entity nodes in a group ordered by normalized
// name.
func (s *Neo4jStore) ListNodes(ctx context.Context, groupID string) ([]*types.EntityNode, error) {
	session := s.newSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n:Entity {group_id: $group_id})
			WHERE n.retired_at IS NULL
			RETURN n
			ORDER BY n.normalized_name
		`, map[string]any{"group_id": groupID})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, wrapNeo4jError(err)
	}
	return entityNodesFromRecords(result.([]*db.Record))
}

// SearchCandidates returns live nodes of the group within coarse name or
// embedding distance of the probe, bounded by limit. Name proximity is
// token containment on the normalized name; embedding proximity uses the
// vector index when a probe embedding is supplied.
func (s *Neo4jStore) SearchCandidates(ctx context.Context, groupID, normalizedName string, embedding []float32, limit int) ([]*types.EntityNode, error) {
	if limit <= 0 {
		limit = 50
	}

	session := s.newSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n:Entity {group_id: $group_id})
			WHERE n.retired_at IS NULL
			  AND (n.normalized_name = $name
			       OR any(token IN split($name, ' ') WHERE n.normalized_name CONTAINS token))
			RETURN n
			LIMIT $limit
		`, map[string]any{"group_id": groupID, "name": normalizedName, "limit": limit})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		if len(embedding) > 0 {
			vecRes, err := tx.Run(ctx, `
				CALL db.index.vector.queryNodes($index, $limit, $embedding)
				YIELD node AS n
				WHERE n.group_id = $group_id AND n.retired_at IS NULL
				RETURN n
			`, map[string]any{
				"index":     vectorIndexName,
				"limit":     limit,
				"embedding": embeddingToAny(embedding),
				"group_id":  groupID,
			})
			if err != nil {
				return nil, err
			}
			vecRecords, err := vecRes.Collect(ctx)
			if err != nil {
				return nil, err
			}
			records = append(records, vecRecords...)
		}
		return records, nil
	})
	if err != nil {
		return nil, wrapNeo4jError(err)
	}

	nodes, err := entityNodesFromRecords(result.([]*db.Record))
	if err != nil {
		return nil, err
	}

	// The name and vector passes can return the same node twice.
	seen := make(map[string]bool, len(nodes))
	deduped := nodes[:0]
	for _, node := range nodes {
		if !seen[node.Uuid] {
			seen[node.Uuid] = true
			deduped = append(deduped, node)
		}
	}
	if len(deduped) > limit {
		deduped = deduped[:limit]
	}
	return deduped, nil
}

// UpsertEpisode persists one episodic node keyed by identity.
func (s *Neo4jStore) UpsertEpisode(ctx context.Context, episode *types.EpisodicNode) error {
	if err := episode.Validate(); err != nil {
		return err
	}
	if episode.CreatedAt.IsZero() {
		episode.CreatedAt = time.Now().UTC()
	}

	session := s.newSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MERGE (e:Episodic {uuid: $uuid, group_id: $group_id})
			ON CREATE SET e.created_at = $created_at
			SET e.content = $content,
			    e.reference_time = $reference_time,
			    e.source = $source
		`, map[string]any{
			"uuid":           episode.Uuid,
			"group_id":       episode.GroupID,
			"content":        episode.Content,
			"reference_time": episode.ReferenceTime.Format(time.RFC3339Nano),
			"source":         episode.Source,
			"created_at":     episode.CreatedAt.Format(time.RFC3339Nano),
		})
		return nil, err
	})
	return wrapNeo4jError(err)
}

// UpsertEntityEdge creates or updates a typed relationship keyed by its
// derived identity.
func (s *Neo4jStore) UpsertEntityEdge(ctx context.Context, edge *types.EntityEdge) error {
	if err := edge.Validate(); err != nil {
		return err
	}
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now().UTC()
	}

	session := s.newSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MATCH (src:Entity {uuid: $source_uuid, group_id: $group_id})
			MATCH (dst:Entity {uuid: $target_uuid, group_id: $group_id})
			MERGE (src)-[r:RELATES_TO {uuid: $uuid}]->(dst)
			ON CREATE SET r.created_at = $created_at
			SET r.group_id = $group_id,
			    r.relation_name = $relation_name,
			    r.fact = $fact
		`, map[string]any{
			"uuid":          edge.Uuid,
			"group_id":      edge.GroupID,
			"source_uuid":   edge.SourceUuid,
			"target_uuid":   edge.TargetUuid,
			"relation_name": edge.RelationName,
			"fact":          edge.Fact,
			"created_at":    edge.CreatedAt.Format(time.RFC3339Nano),
		})
		return nil, err
	})
	return wrapNeo4jError(err)
}

// UpsertEpisodicEdge creates or updates a MENTIONS edge keyed by its
// derived identity.
func (s *Neo4jStore) UpsertEpisodicEdge(ctx context.Context, edge *types.EpisodicEdge) error {
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now().UTC()
	}

	session := s.newSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MATCH (e:Episodic {uuid: $episode_uuid, group_id: $group_id})
			MATCH (n:Entity {uuid: $entity_uuid, group_id: $group_id})
			MERGE (e)-[r:MENTIONS {uuid: $uuid}]->(n)
			ON CREATE SET r.created_at = $created_at
			SET r.group_id = $group_id
		`, map[string]any{
			"uuid":         edge.Uuid,
			"group_id":     edge.GroupID,
			"episode_uuid": edge.EpisodeUuid,
			"entity_uuid":  edge.EntityUuid,
			"created_at":   edge.CreatedAt.Format(time.RFC3339Nano),
		})
		return nil, err
	})
	return wrapNeo4jError(err)
}

// EdgesForNode returns every RELATES_TO edge touching the node.
func (s *Neo4jStore) EdgesForNode(ctx context.Context, uuid, groupID string) ([]*types.EntityEdge, error) {
	session := s.newSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n:Entity {uuid: $uuid, group_id: $group_id})-[r:RELATES_TO]-(m:Entity)
			RETURN r, startNode(r).uuid AS source_uuid, endNode(r).uuid AS target_uuid
		`, map[string]any{"uuid": uuid, "group_id": groupID})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, wrapNeo4jError(err)
	}

	records := result.([]*db.Record)
	edges := make([]*types.EntityEdge, 0, len(records))
	for _, record := range records {
		edge, err := entityEdgeFromRecord(record)
		if err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	return edges, nil
}

// MergeNodes applies one merge atomically: every RELATES_TO and MENTIONS
// endpoint on the duplicate is re-pointed at the canonical, the pre-merged
// summary and attributes land on the canonical, the audit edge is written,
// and the duplicate is retired. Rolls back as a unit on any failure.
func (s *Neo4jStore) MergeNodes(ctx context.Context, req MergeRequest) (int, error) {
	session := s.newSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (dup:Entity {uuid: $duplicate_uuid, group_id: $group_id})
			MATCH (canon:Entity {uuid: $canonical_uuid, group_id: $group_id})
			WHERE canon.retired_at IS NULL

			// Outgoing entity edges. An edge from the duplicate to the
			// canonical rewires into a self-loop on the canonical, never
			// left dangling on the retired node.
			OPTIONAL MATCH (dup)-[out:RELATES_TO]->(other:Entity)
			FOREACH (_ IN CASE WHEN out IS NULL THEN [] ELSE [1] END |
				MERGE (canon)-[moved:RELATES_TO {uuid: out.uuid}]->(other)
				SET moved += properties(out)
				DELETE out
			)
			WITH dup, canon, count(out) AS outgoing

			// Incoming entity edges
			OPTIONAL MATCH (other2:Entity)-[in:RELATES_TO]->(dup)
			FOREACH (_ IN CASE WHEN in IS NULL THEN [] ELSE [1] END |
				MERGE (other2)-[moved:RELATES_TO {uuid: in.uuid}]->(canon)
				SET moved += properties(in)
				DELETE in
			)
			WITH dup, canon, outgoing, count(in) AS incoming

			// Episode mentions
			OPTIONAL MATCH (ep:Episodic)-[m:MENTIONS]->(dup)
			FOREACH (_ IN CASE WHEN m IS NULL THEN [] ELSE [1] END |
				MERGE (ep)-[moved:MENTIONS {uuid: m.uuid}]->(canon)
				SET moved += properties(m)
				DELETE m
			)
			WITH dup, canon, outgoing, incoming, count(m) AS mentions

			SET canon.summary = $summary,
			    canon.attributes = $attributes

			MERGE (dup)-[audit:IS_DUPLICATE_OF {uuid: $audit_uuid}]->(canon)
			ON CREATE SET audit.group_id = $group_id, audit.created_at = $now

			SET dup.retired_at = $now
			RETURN outgoing + incoming + mentions AS rewired
		`, map[string]any{
			"duplicate_uuid": req.DuplicateUuid,
			"canonical_uuid": req.CanonicalUuid,
			"group_id":       req.GroupID,
			"summary":        req.MergedSummary,
			"attributes":     attributesToJSON(req.MergedAttrs),
			"audit_uuid":     req.AuditEdgeUuid,
			"now":            time.Now().UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, &types.DataIntegrityError{
				Uuid:   req.DuplicateUuid,
				Reason: "duplicate or canonical node missing or retired",
			}
		}

		if req.Retire == RetireModeHard {
			if _, err := tx.Run(ctx, `
				MATCH (dup:Entity {uuid: $duplicate_uuid, group_id: $group_id})
				DETACH DELETE dup
			`, map[string]any{"duplicate_uuid": req.DuplicateUuid, "group_id": req.GroupID}); err != nil {
				return nil, err
			}
		}
		return record, nil
	})
	if err != nil {
		return 0, wrapNeo4jError(err)
	}

	record := result.(*db.Record)
	rewired, _ := record.Get("rewired")
	if count, ok := rewired.(int64); ok {
		return int(count), nil
	}
	return 0, nil
}

func entityNodesFromRecords(records []*db.Record) ([]*types.EntityNode, error) {
	nodes := make([]*types.EntityNode, 0, len(records))
	for _, record := range records {
		node, err := entityNodeFromRecord(record)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func entityNodeFromRecord(record *db.Record) (*types.EntityNode, error) {
	value, ok := record.Get("n")
	if !ok {
		return nil, types.ErrNodeNotFound
	}
	dbNode, ok := value.(dbtype.Node)
	if !ok {
		return nil, fmt.Errorf("unexpected record type %T for entity node", value)
	}

	props := dbNode.Props
	node := &types.EntityNode{
		Uuid:           stringProp(props, "uuid"),
		GroupID:        stringProp(props, "group_id"),
		Name:           stringProp(props, "name"),
		NormalizedName: stringProp(props, "normalized_name"),
		Summary:        stringProp(props, "summary"),
		Attributes:     attributesFromJSON(stringProp(props, "attributes")),
		NameEmbedding:  embeddingFromAny(props["name_embedding"]),
		CreatedAt:      timeProp(props, "created_at"),
	}
	if retired := timeProp(props, "retired_at"); !retired.IsZero() {
		node.RetiredAt = &retired
	}
	return node, nil
}

func entityEdgeFromRecord(record *db.Record) (*types.EntityEdge, error) {
	value, ok := record.Get("r")
	if !ok {
		return nil, fmt.Errorf("edge record missing relationship")
	}
	rel, ok := value.(dbtype.Relationship)
	if !ok {
		return nil, fmt.Errorf("unexpected record type %T for entity edge", value)
	}

	source, _ := record.Get("source_uuid")
	target, _ := record.Get("target_uuid")
	props := rel.Props
	return &types.EntityEdge{
		Uuid:         stringProp(props, "uuid"),
		GroupID:      stringProp(props, "group_id"),
		SourceUuid:   fmt.Sprintf("%v", source),
		TargetUuid:   fmt.Sprintf("%v", target),
		RelationName: stringProp(props, "relation_name"),
		Fact:         stringProp(props, "fact"),
		CreatedAt:    timeProp(props, "created_at"),
	}, nil
}
