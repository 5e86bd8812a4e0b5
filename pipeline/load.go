package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads, parses and validates the pipeline file at path. Warnings are
// returned alongside a valid definition; errors are returned as a
// *DiagnosticError.
func Load(path string) (*Definition, []Diagnostic, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from caller
	if err != nil {
		return nil, nil, fmt.Errorf("reading file %s: %w", path, err)
	}

	def, err := Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	diags := Validate(def)
	if HasErrors(diags) {
		return nil, diags, &DiagnosticError{Diagnostics: diags}
	}
	return def, diags, nil
}

// Parse decodes a pipeline definition from YAML. JSON input is accepted as
// well, since it is valid YAML.
func Parse(data []byte) (*Definition, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("empty pipeline definition")
	}

	var def Definition
	if err := root.Decode(&def); err != nil {
		return nil, fmt.Errorf("decoding pipeline: %w", err)
	}

	if steps := mappingValue(root.Content[0], "steps"); steps != nil && steps.Kind == yaml.SequenceNode {
		for i, n := range steps.Content {
			if i < len(def.Steps) {
				def.Steps[i].Line = n.Line
			}
		}
	}
	return &def, nil
}

// mappingValue returns the value node of key in a mapping node.
func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}
