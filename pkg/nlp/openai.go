package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/oculairmedia/graphiti-sub006/pkg/types"
)

// Config configures the OpenAI-backed judge. BaseURL supports
// OpenAI-compatible services.
type Config struct {
	Model       string
	BaseURL     string
	Temperature float32
	MaxTokens   int
}

// OpenAIJudge implements Judge against OpenAI chat completions.
type OpenAIJudge struct {
	client *openai.Client
	config Config
}

// NewOpenAIJudge creates a judge backed by OpenAI or an OpenAI-compatible
// endpoint.
func NewOpenAIJudge(apiKey string, config Config) (*OpenAIJudge, error) {
	var client *openai.Client
	if config.BaseURL != "" {
		if apiKey == "" {
			apiKey = "dummy-key"
		}
		clientConfig := openai.DefaultConfig(apiKey)
		clientConfig.BaseURL = config.BaseURL
		client = openai.NewClientWithConfig(clientConfig)
	} else {
		client = openai.NewClient(apiKey)
	}

	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 1024
	}

	return &OpenAIJudge{client: client, config: config}, nil
}

// Close is a no-op; the underlying client holds no persistent connection.
func (j *OpenAIJudge) Close() error { return nil }

const nodeJudgeSystemPrompt = `You deduplicate entities in a knowledge graph.
Given a candidate entity and a numbered list of existing entities, decide
whether the candidate names the same real-world thing as one of them.
A name that extends another with extra words ("Claude" vs "Claude Code")
names a DIFFERENT thing.
Respond with JSON only: {"canonical_idx": <index or -1>, "reasoning": "<short>"}`

const clusterJudgeSystemPrompt = `You deduplicate entities in a knowledge graph.
Given a numbered list of entities that look similar, partition them into
groups that each name exactly the same real-world thing. Entities you are
unsure about go in their own group. A name that extends another with extra
words names a DIFFERENT thing.
Respond with JSON only: {"groups": [[<indices>], ...]} covering every index exactly once.`

type entitySketch struct {
	Idx        int                    `json:"idx"`
	Name       string                 `json:"name"`
	Summary    string                 `json:"summary,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

func sketches(nodes []*types.EntityNode) []entitySketch {
	out := make([]entitySketch, len(nodes))
	for i, node := range nodes {
		out[i] = entitySketch{Idx: i, Name: node.Name, Summary: node.Summary, Attributes: node.Attributes}
	}
	return out
}

func (j *OpenAIJudge) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := j.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       j.config.Model,
		Temperature: j.config.Temperature,
		MaxTokens:   j.config.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
			return "", &RateLimitError{Message: apiErr.Message}
		}
		return "", fmt.Errorf("judgment completion failed: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// JudgeNode asks the backend which contender, if any, names the same
// referent as the candidate.
func (j *OpenAIJudge) JudgeNode(ctx context.Context, candidate *types.EntityNode, contenders []*types.EntityNode) (Verdict, error) {
	if len(contenders) == 0 {
		return Verdict{CanonicalIdx: DistinctVerdict}, nil
	}

	payload, err := json.Marshal(map[string]any{
		"candidate":  entitySketch{Idx: -1, Name: candidate.Name, Summary: candidate.Summary, Attributes: candidate.Attributes},
		"contenders": sketches(contenders),
	})
	if err != nil {
		return Verdict{CanonicalIdx: DistinctVerdict}, err
	}

	raw, err := j.complete(ctx, nodeJudgeSystemPrompt, string(payload))
	if err != nil {
		return Verdict{CanonicalIdx: DistinctVerdict}, err
	}

	var verdict Verdict
	if err := DecodeResponse(raw, &verdict); err != nil {
		return Verdict{CanonicalIdx: DistinctVerdict}, err
	}
	if verdict.CanonicalIdx >= len(contenders) {
		return Verdict{CanonicalIdx: DistinctVerdict}, &MalformedResponseError{Raw: raw}
	}
	return verdict, nil
}

type clusterResponse struct {
	Groups [][]int `json:"groups" yaml:"groups"`
}

// JudgeCluster asks the backend to partition a cluster into canonical
// groups. A response that does not cover every index exactly once is
// rejected as malformed.
func (j *OpenAIJudge) JudgeCluster(ctx context.Context, cluster []*types.EntityNode) ([][]int, error) {
	if len(cluster) < 2 {
		return NopJudge{}.JudgeCluster(ctx, cluster)
	}

	payload, err := json.Marshal(map[string]any{"entities": sketches(cluster)})
	if err != nil {
		return nil, err
	}

	raw, err := j.complete(ctx, clusterJudgeSystemPrompt, string(payload))
	if err != nil {
		return nil, err
	}

	var parsed clusterResponse
	if err := DecodeResponse(raw, &parsed); err != nil {
		return nil, err
	}
	if !validPartition(parsed.Groups, len(cluster)) {
		return nil, &MalformedResponseError{Raw: raw}
	}
	return parsed.Groups, nil
}

// validPartition checks that groups cover [0, size) exactly once.
func validPartition(groups [][]int, size int) bool {
	seen := make(map[int]bool, size)
	for _, group := range groups {
		for _, idx := range group {
			if idx < 0 || idx >= size || seen[idx] {
				return false
			}
			seen[idx] = true
		}
	}
	return len(seen) == size
}
