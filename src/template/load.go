package template

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/username/finloader/backend/src/logger"
)

// fileDefinition is the on-disk shape of a template override file.
type fileDefinition struct {
	Fields []Field `yaml:"fields"`
	Checks []Check `yaml:"checks"`
}

// Load builds the template graph from a YAML definition file. An empty path
// returns the compiled-in template. A missing or unreadable file is a fatal
// configuration error, as is any cycle in the formula graph.
func Load(path string) (*Graph, error) {
	if path == "" {
		logger.L.Info("Using compiled-in template definition")
		return BuiltinGraph(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template definition %s: %w", path, err)
	}

	var def fileDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing template definition %s: %w", path, err)
	}
	if len(def.Fields) == 0 {
		return nil, fmt.Errorf("template definition %s contains no fields", path)
	}

	g, err := NewGraph(def.Fields, def.Checks)
	if err != nil {
		return nil, fmt.Errorf("template definition %s: %w", path, err)
	}
	logger.L.Info("Template definition loaded", "path", path, "fields", len(def.Fields), "checks", len(def.Checks))
	return g, nil
}
