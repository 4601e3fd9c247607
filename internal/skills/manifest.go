package skills

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// Command is one command a Skill declares as callable via Execute.
type Command struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// Requirements are the host preconditions checked at load time.
type Requirements struct {
	Bins    []string `yaml:"bins,omitempty"`
	AnyBins []string `yaml:"anyBins,omitempty"`
	Env     []string `yaml:"env,omitempty"`
	OS      []string `yaml:"os,omitempty"`
}

// Manifest is the decoded shape of a Skill's skill.yaml.
type Manifest struct {
	Name        string            `yaml:"name"`
	Version     string            `yaml:"version"`
	Description string            `yaml:"description,omitempty"`
	Entry       string            `yaml:"entry"`
	Commands    []Command         `yaml:"commands"`
	Permissions []string          `yaml:"permissions"`
	Hooks       map[string]string `yaml:"hooks,omitempty"`
	Requires    Requirements      `yaml:"requires,omitempty"`
}

var nameSchema = `{
	"type": "object",
	"required": ["name", "version", "entry", "commands", "permissions"],
	"properties": {
		"name": {"type": "string", "pattern": "^[a-z0-9]+(-[a-z0-9]+)*$", "minLength": 1, "maxLength": 100},
		"version": {"type": "string", "pattern": "^\\d+\\.\\d+\\.\\d+(-[0-9A-Za-z.-]+)?(\\+[0-9A-Za-z.-]+)?$"},
		"entry": {"type": "string", "minLength": 1},
		"commands": {"type": "array", "minItems": 1, "items": {"type": "object", "required": ["name"]}},
		"permissions": {
			"type": "array",
			"minItems": 1,
			"items": {"enum": ["db:read", "db:write", "fs:read", "fs:write", "exec", "network", "all"]}
		},
		"hooks": {"type": "object"}
	}
}`

var manifestSchema = compileManifestSchema()

func compileManifestSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(nameSchema)))
	if err != nil {
		panic(fmt.Sprintf("skills: compile manifest schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("skill-manifest.json", doc); err != nil {
		panic(fmt.Sprintf("skills: add manifest schema resource: %v", err))
	}
	schema, err := c.Compile("skill-manifest.json")
	if err != nil {
		panic(fmt.Sprintf("skills: compile manifest schema: %v", err))
	}
	return schema
}

// ParseManifest decodes and validates a skill.yaml document. Validation
// enforces a lowercase-kebab name, a semver version, at least one command,
// and at least one permission drawn from the fixed tag set.
func ParseManifest(data []byte) (Manifest, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return Manifest{}, fmt.Errorf("parse skill.yaml: %w", err)
	}

	asJSON, err := json.Marshal(generic)
	if err != nil {
		return Manifest{}, fmt.Errorf("normalize skill.yaml for validation: %w", err)
	}
	jsonLike, err := jsonschema.UnmarshalJSON(bytes.NewReader(asJSON))
	if err != nil {
		return Manifest{}, fmt.Errorf("normalize skill.yaml for validation: %w", err)
	}
	if err := manifestSchema.Validate(jsonLike); err != nil {
		return Manifest{}, fmt.Errorf("skill.yaml failed validation: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode skill.yaml: %w", err)
	}
	return m, nil
}
