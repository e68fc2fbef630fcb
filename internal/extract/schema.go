// =============================================================================
// EXTRACTION PROTOCOL - FIXED CHAT PAYLOAD AND OUTPUT SCHEMA
// =============================================================================
//
// WHAT: The exact request body sent to a backend for one chunk, and the
// types its reply parses into.
//
// The wire format is fixed and byte-relevant for compatibility with the
// deployed backends:
//
//   POST {base_url}/api/chat
//   {
//     "model": "...",
//     "messages": [ {system instruction}, {user chunk} ],
//     "stream": false,
//     "temperature": 0, "top_p": 1.0, "top_k": 1,
//     "repeat_penalty": 1.0, "seed": 42,
//     "format": { JSON Schema for the observation array }
//   }
//
// Sampling is pinned fully deterministic (greedy decode, fixed seed) so
// reprocessing the same document yields the same graph. The format field
// constrains the reply to an array of observations, each naming its
// entities with a category from a fixed taxonomy.
//
// The reply's message.content is itself a JSON string; parsing it is the
// caller's job and a parse failure costs only that one chunk.
//
// =============================================================================

package extract

import (
	"encoding/json"
)

// SystemPrompt is the fixed instruction describing the extraction task and
// output taxonomy. Sent verbatim as the system message of every request.
const SystemPrompt = "Extract observations from the text. An observation is a natural language statement that contains one or more entities and describes relationships or facts about them. For each observation, identify the most important entities mentioned in it and provide a single word that best describes the key relationship or fact. Try to limit to 2 entities per observation, but you may include more if multiple people's names are listed together or if the observation requires more entities to be meaningful. Use these standardized categories: Person, Organization, Object, Location, Event, Date, Concept, Trait, Role, Animal, Technology, Product. The label should be the actual name of the entity (e.g., 'Bruce Lee' for a person, 'IBM' for an organization, 'New York' for a location)."

// Categories is the fixed entity taxonomy the schema permits.
var Categories = []string{
	"Person", "Organization", "Object", "Location", "Event", "Date",
	"Concept", "Trait", "Role", "Animal", "Technology", "Product",
}

// Entity is one entity referenced by an observation.
type Entity struct {
	Label    string `json:"label"`
	Category string `json:"category"`
}

// Observation is one extracted statement plus the chunk bookkeeping added
// by the fan-out scheduler.
type Observation struct {
	Observation  string   `json:"observation"`
	Relationship string   `json:"relationship"`
	Entities     []Entity `json:"entities"`

	// ChunkIndex is the positional index of the source chunk.
	ChunkIndex int `json:"chunk_index"`

	// ChunkStartPos/ChunkEndPos locate the observation text inside its
	// chunk. When the text is not found verbatim the positions span the
	// whole chunk and PositionApproximate is set.
	ChunkStartPos       int  `json:"chunk_start_pos"`
	ChunkEndPos         int  `json:"chunk_end_pos"`
	PositionApproximate bool `json:"position_approximate,omitempty"`
}

// chatMessage is one entry of the messages array.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequestBody is the full wire body. Field order follows the deployed
// format; sampling parameters sit at the top level beside the messages.
type chatRequestBody struct {
	Model         string         `json:"model"`
	Messages      []chatMessage  `json:"messages"`
	Stream        bool           `json:"stream"`
	Temperature   float64        `json:"temperature"`
	TopP          float64        `json:"top_p"`
	TopK          int            `json:"top_k"`
	RepeatPenalty float64        `json:"repeat_penalty"`
	Seed          int            `json:"seed"`
	Format        map[string]any `json:"format"`
}

// observationSchema is the JSON Schema sent as the format field.
func observationSchema() map[string]any {
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"observation": map[string]any{
					"type":        "string",
					"description": "A natural language statement that describes relationships or facts about entities",
				},
				"relationship": map[string]any{
					"type":        "string",
					"description": "A single word that best describes the key relationship or fact (e.g., 'lives', 'born', 'helps', 'protects', 'loves')",
				},
				"entities": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"label": map[string]any{
								"type":        "string",
								"description": "The actual name of the entity (e.g., 'Bruce Lee', 'IBM', 'New York')",
							},
							"category": map[string]any{
								"type":        "string",
								"description": "One of: Person, Organization, Object, Location, Event, Date, Concept, Trait, Role, Animal, Technology, Product",
							},
						},
						"required": []string{"label", "category"},
					},
					"description": "List of entities mentioned in the observation",
				},
			},
			"required": []string{"observation", "relationship", "entities"},
		},
	}
}

// ChunkRequest renders the fixed chat payload for one chunk. It implements
// cluster.Payload; the model passed to Render is the target server's
// configured model unless the request carries an override.
type ChunkRequest struct {
	// Text is the chunk content, carried as the user message.
	Text string

	// Model, when non-empty, overrides the server's configured model
	// (the UI lets a job pin a specific model).
	Model string
}

// Render builds the JSON body for a server whose configured model is the
// given one.
func (r ChunkRequest) Render(model string) ([]byte, error) {
	if r.Model != "" {
		model = r.Model
	}

	body := chatRequestBody{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: r.Text},
		},
		Stream:        false,
		Temperature:   0,
		TopP:          1.0,
		TopK:          1,
		RepeatPenalty: 1.0,
		Seed:          42,
		Format:        observationSchema(),
	}
	return json.Marshal(body)
}

// ParseObservations decodes a reply's message.content into observations.
// The content must be a JSON array matching the schema we constrained the
// reply with.
func ParseObservations(content string) ([]Observation, error) {
	var obs []Observation
	if err := json.Unmarshal([]byte(content), &obs); err != nil {
		return nil, err
	}
	return obs, nil
}
