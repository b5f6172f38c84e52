package editor

import (
	"github.com/randalmurphal/flowmind/pkg/flowmind/api"
	"github.com/randalmurphal/flowmind/pkg/flowmind/graph"
)

// FieldType is how a field is edited.
type FieldType string

// Field types.
const (
	FieldText    FieldType = "text"
	FieldSelect  FieldType = "select"
	FieldCounter FieldType = "counter"
)

// Field describes one editable data field of a node kind.
type Field struct {
	Name     string
	Label    string
	Type     FieldType
	Options  []string
	Default  any
	Rule     string
	ReadOnly bool
}

var labelField = Field{Name: "label", Label: "Label", Type: FieldText, Default: "", Rule: "max=120"}

var schema = map[graph.Kind][]Field{
	graph.KindQuery: nil,
	graph.KindKnowledge: {
		{Name: "collection", Label: "Collection", Type: FieldText, Default: api.DefaultCollection, Rule: "required,min=3,max=63"},
		{Name: "files", Label: "Files", Type: FieldCounter, Default: 0, ReadOnly: true},
	},
	graph.KindLLM: {
		{Name: "provider", Label: "Provider", Type: FieldSelect, Options: []string{"gemini"}, Default: "gemini", Rule: "oneof=gemini"},
		{Name: "model", Label: "Model", Type: FieldText, Default: "gemini-1.5-flash", Rule: "required,max=100"},
	},
	graph.KindSearch: {
		{Name: "engine", Label: "Engine", Type: FieldSelect, Options: []string{"serpapi", "brave"}, Default: "serpapi", Rule: "oneof=serpapi brave"},
	},
	graph.KindOutput: nil,
}

// Fields returns the editable fields of kind in display order: the common
// label first, then the kind's own fields. Unknown kinds have none.
func Fields(kind graph.Kind) []Field {
	own, ok := schema[kind]
	if !ok {
		return nil
	}
	out := make([]Field, 0, len(own)+1)
	out = append(out, labelField)
	return append(out, own...)
}

func lookup(kind graph.Kind, name string) (Field, bool) {
	for _, f := range Fields(kind) {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
