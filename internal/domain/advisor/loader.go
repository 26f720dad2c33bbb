package advisor

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Strob0t/CourseForge/internal/domain"
)

//go:embed advisors.yaml
var defaultDefinitions []byte

// Definitions is the on-disk shape of an advisor file.
type Definitions struct {
	Router   string      `yaml:"router"`
	Advisors []AgentSpec `yaml:"advisors"`
}

// AgentSpec is one agent entry in an advisor file.
type AgentSpec struct {
	ID           string     `yaml:"id"`
	Name         string     `yaml:"name"`
	Department   string     `yaml:"department"`
	Instructions string     `yaml:"instructions"`
	Tools        []ToolSpec `yaml:"tools"`
	Handoffs     []string   `yaml:"handoffs"`
}

// ToolSpec declares a catalog tool. Department defaults to the agent's.
type ToolSpec struct {
	ID          string `yaml:"id"`
	Department  string `yaml:"department"`
	Description string `yaml:"description"`
}

// Load parses advisor definitions, registers every agent and validates the
// handoff graph. It returns the registry and the id of the entry agent.
func Load(data []byte) (*Registry, string, error) {
	var defs Definitions
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, "", fmt.Errorf("%w: parse advisor definitions: %v", domain.ErrValidation, err)
	}
	if defs.Router == "" {
		return nil, "", fmt.Errorf("%w: advisor definitions name no router", domain.ErrValidation)
	}

	reg := NewRegistry()
	for i := range defs.Advisors {
		def := &defs.Advisors[i]
		a := Agent{
			ID:                  def.ID,
			Name:                def.Name,
			Department:          def.Department,
			InstructionTemplate: def.Instructions,
			HandoffTargets:      def.Handoffs,
		}
		for _, t := range def.Tools {
			a.DataTools = append(a.DataTools, ToolRef{
				ID:          t.ID,
				Kind:        ToolKindData,
				Department:  t.Department,
				Description: t.Description,
			})
		}
		if err := reg.Register(a); err != nil {
			return nil, "", err
		}
	}
	if _, err := reg.Resolve(defs.Router); err != nil {
		return nil, "", err
	}
	if err := reg.ValidateHandoffGraph(); err != nil {
		return nil, "", err
	}
	return reg, defs.Router, nil
}

// LoadFile reads definitions from path, or the built-in set when path is empty.
func LoadFile(path string) (*Registry, string, error) {
	if path == "" {
		return LoadDefault()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read advisor file: %w", err)
	}
	return Load(data)
}

// LoadDefault loads the built-in router and department advisors.
func LoadDefault() (*Registry, string, error) {
	return Load(defaultDefinitions)
}
