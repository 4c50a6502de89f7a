package spec

// Spec describes one capability: what it needs, what it may touch and how
// it runs.
type Spec struct {
	Version     string            `json:"version" yaml:"version" jsonschema:"minLength=1,description=Document format version"`
	Capability  string            `json:"capability" yaml:"capability" jsonschema:"minLength=1,description=Capability provided by the spec"`
	Description string            `json:"description" yaml:"description" jsonschema:"description=Short description of the capability"`
	Inputs      map[string]Input  `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Permissions PermissionSet     `json:"permissions" yaml:"permissions"`
	Returns     map[string]string `json:"returns" yaml:"returns" jsonschema:"description=Named return values such as summary: ${{ summarize.output }}"`
	Plan        []Step            `json:"plan,omitempty" yaml:"plan,omitempty"`
}

type Input struct {
	Type        string `json:"type" yaml:"type" jsonschema:"minLength=1,description=Input type such as string or number"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

type PermissionSet struct {
	Network    string   `json:"network" yaml:"network" jsonschema:"description=Network access"`
	Filesystem string   `json:"filesystem" yaml:"filesystem" jsonschema:"description=Filesystem access such as ephemeral or db"`
	Tools      []string `json:"tools" yaml:"tools" jsonschema:"description=Tools available to the spec"`
}

// Step is one tool invocation of a plan.
type Step struct {
	ID     string         `json:"id" yaml:"id" jsonschema:"pattern=^[^ ]+$,description=Unique step id without spaces"`
	Use    string         `json:"use" yaml:"use" jsonschema:"minLength=1,description=Tool name such as git.clone"`
	With   map[string]any `json:"with,omitempty" yaml:"with,omitempty"`
	Output string         `json:"output,omitempty" yaml:"output,omitempty"`
}

// Document is a loaded and validated spec file.
type Document struct {
	Path string         `json:"path"`
	Spec Spec           `json:"spec"`
	Raw  map[string]any `json:"-"`
}
