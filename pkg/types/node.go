package types

import (
	"time"
)

// EntityNode represents a real-world entity in the knowledge graph.
// Identity is unique per group; NormalizedName is the key the identity
// deriver and the matcher operate on.
type EntityNode struct {
	Uuid           string                 `json:"uuid"`
	GroupID        string                 `json:"group_id"`
	Name           string                 `json:"name"`
	NormalizedName string                 `json:"normalized_name"`
	NameEmbedding  []float32              `json:"name_embedding,omitempty"`
	Summary        string                 `json:"summary,omitempty"`
	Attributes     map[string]interface{} `json:"attributes,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`

	// RetiredAt is set when the node was absorbed into a canonical node.
	// Retired nodes stay queryable for audit but are never valid edge
	// endpoints.
	RetiredAt *time.Time `json:"retired_at,omitempty"`
}

// Retired reports whether the node has been absorbed into a canonical node.
func (n *EntityNode) Retired() bool {
	return n.RetiredAt != nil
}

// Validate checks the fields every entity node must carry.
func (n *EntityNode) Validate() error {
	if n.Name == "" {
		return ErrEmptyName
	}
	if n.GroupID == "" {
		return ErrEmptyGroupID
	}
	return nil
}

// EpisodicNode is one raw ingested unit. It is read-only input to the
// resolution engine; extraction happens upstream.
type EpisodicNode struct {
	Uuid          string    `json:"uuid"`
	GroupID       string    `json:"group_id"`
	Content       string    `json:"content"`
	ReferenceTime time.Time `json:"reference_time"`
	Source        string    `json:"source"`
	CreatedAt     time.Time `json:"created_at"`
}

// Validate checks the fields every episode must carry.
func (e *EpisodicNode) Validate() error {
	if e.Content == "" {
		return ErrEmptyContent
	}
	if e.GroupID == "" {
		return ErrEmptyGroupID
	}
	return nil
}

// Episode bundles an episodic node with its extracted content and the prior
// episodes that give the judgment backend conversational context.
type Episode struct {
	Node             *EpisodicNode
	ExtractedNodes   []*EntityNode
	ExtractedEdges   []*EntityEdge
	PreviousEpisodes []*EpisodicNode
}
