package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML accepts a plain path string or a {path, depth} mapping.
func (sp *SearchPath) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var path string
		if err := node.Decode(&path); err != nil {
			return err
		}
		*sp = SearchPath{Path: path}
		return nil
	}
	type plain SearchPath
	var decoded plain
	if err := node.Decode(&decoded); err != nil {
		return err
	}
	*sp = SearchPath(decoded)
	return nil
}

// UnmarshalTOML accepts a plain path string or a {path, depth} table.
func (sp *SearchPath) UnmarshalTOML(data any) error {
	switch value := data.(type) {
	case string:
		*sp = SearchPath{Path: value}
		return nil
	case map[string]any:
		decoded := SearchPath{}
		if raw, ok := value["path"]; ok {
			path, ok := raw.(string)
			if !ok {
				return fmt.Errorf("search path: path must be a string")
			}
			decoded.Path = path
		}
		if raw, ok := value["depth"]; ok {
			depth, ok := raw.(int64)
			if !ok {
				return fmt.Errorf("search path: depth must be an integer")
			}
			d := int(depth)
			decoded.Depth = &d
		}
		*sp = decoded
		return nil
	default:
		return fmt.Errorf("search path: expected string or table, got %T", data)
	}
}
