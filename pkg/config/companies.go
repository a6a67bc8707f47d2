package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TagGroup is a company label and the tags searched on its behalf.
type TagGroup struct {
	Company string
	Tags    []string
}

// LoadTagGroups reads a companies file mapping company name to a list of
// tags. JSON and YAML are both accepted; file order is preserved.
//
// With an empty selection every group is returned. Otherwise groups come
// back in selection order and names missing from the file are returned in
// unknown.
func LoadTagGroups(path string, selection []string) (groups []TagGroup, unknown []string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read companies file: %w", err)
	}

	all, err := ParseTagGroups(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse companies file %s: %w", path, err)
	}

	if len(selection) == 0 {
		return all, nil, nil
	}

	byName := make(map[string]TagGroup, len(all))
	for _, g := range all {
		byName[g.Company] = g
	}

	seen := make(map[string]bool, len(selection))
	for _, name := range selection {
		if seen[name] {
			continue
		}
		seen[name] = true
		g, ok := byName[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		groups = append(groups, g)
	}

	return groups, unknown, nil
}

// ParseTagGroups decodes a companies document.
func ParseTagGroups(data []byte) ([]TagGroup, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected a mapping of company to tags at line %d", root.Line)
	}

	var groups []TagGroup
	seen := make(map[string]bool)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]

		var tags []string
		if err := value.Decode(&tags); err != nil {
			return nil, fmt.Errorf("company %q: tags must be a list of strings: %w", key.Value, err)
		}
		if seen[key.Value] {
			continue
		}
		seen[key.Value] = true

		groups = append(groups, TagGroup{
			Company: key.Value,
			Tags:    normalizeTags(tags),
		})
	}

	return groups, nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimPrefix(strings.TrimSpace(t), "#")
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
