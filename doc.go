// Package resolver implements entity and relationship resolution for a
// temporal knowledge graph: deciding whether newly extracted nodes and
// edges denote something already in the graph, and merging duplicates into
// the canonical record without losing relationships.
//
// The pipeline runs in layers:
//
//   - pkg/ident derives deterministic identities: the same (group,
//     normalized name) always yields the same node UUID, and edge UUIDs
//     discriminate on edge kind so a MENTIONS edge can never collide with
//     a RELATES_TO edge over the same endpoints.
//   - pkg/dedup normalizes names and scores similarity: token overlap,
//     embedding cosine, MinHash/LSH fuzzy candidate lookup, and the
//     compound-name rule that keeps "Claude Code" distinct from "Claude".
//   - pkg/resolution resolves extracted nodes episode by episode or in
//     bulk, escalating borderline candidates to an LLM judge and falling
//     back to "distinct" whenever judgment is unavailable.
//   - pkg/merge applies duplicate pairs transactionally: edges rewired,
//     attributes absorbed, an IS_DUPLICATE_OF audit edge written, the
//     duplicate retired.
//   - pkg/reconcile sweeps a group offline for accumulated duplicates,
//     checkpointing per cluster and writing a parquet audit trail.
//
// The Client in this package wires the layers together from a config;
// callers that need finer control use the packages directly.
package resolver
