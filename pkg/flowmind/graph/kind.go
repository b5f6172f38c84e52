package graph

// Kind identifies the behaviour of a node. The set is closed; the wire
// names match the canvas node types.
type Kind string

// Node kinds.
const (
	// KindQuery is the entry node: it receives the user's message.
	KindQuery Kind = "queryNode"

	// KindKnowledge retrieves passages from a document collection.
	KindKnowledge Kind = "knowledgeNode"

	// KindLLM invokes a language model.
	KindLLM Kind = "llmNode"

	// KindSearch runs a web search.
	KindSearch Kind = "searchNode"

	// KindOutput returns the answer to the user.
	KindOutput Kind = "outputNode"
)

// EntryKind is the kind that must be present for a graph to execute.
const EntryKind = KindQuery

var kindLabels = map[Kind]string{
	KindQuery:     "User Query",
	KindKnowledge: "Knowledge Base",
	KindLLM:       "Gemini Pro",
	KindSearch:    "Web Search",
	KindOutput:    "Output",
}

// Kinds returns every node kind in palette order.
func Kinds() []Kind {
	return []Kind{KindQuery, KindKnowledge, KindLLM, KindSearch, KindOutput}
}

// Valid reports whether k belongs to the closed kind set.
func (k Kind) Valid() bool {
	_, ok := kindLabels[k]
	return ok
}

// Label returns the default display label for the kind.
func (k Kind) Label() string {
	if l, ok := kindLabels[k]; ok {
		return l
	}
	return string(k)
}

// DefaultData returns the data a node of kind k starts with when it is
// dropped on the canvas.
func DefaultData(k Kind) Data {
	return Data{
		"label":      k.Label(),
		"model":      "gemini-pro",
		"provider":   "gemini",
		"collection": "knowledge_base",
	}
}
