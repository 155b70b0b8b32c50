package toolexecutor

// Descriptor is the serializable capability summary of a tool used for
// remote discovery.
type Descriptor struct {
	Name             string                 `json:"name" yaml:"name"`
	Description      string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Tags             []string               `json:"tags,omitempty" yaml:"tags,omitempty"`
	HasClientHandler bool                   `json:"hasClientHandler" yaml:"hasClientHandler"`
	HasServerHandler bool                   `json:"hasServerHandler" yaml:"hasServerHandler"`
	HasRender        bool                   `json:"hasRender" yaml:"hasRender"`
	HasMiddleware    bool                   `json:"hasMiddleware" yaml:"hasMiddleware"`
	ServerOnly       bool                   `json:"serverOnly" yaml:"serverOnly"`
	Metadata         map[string]interface{} `json:"metadata" yaml:"metadata"`
	InputSchema      map[string]interface{} `json:"inputSchema,omitempty" yaml:"inputSchema,omitempty"`
}

// Descriptor returns the capability descriptor of d.
func (d *ToolDefinition) Descriptor() Descriptor {
	desc := Descriptor{
		Name:             d.name,
		Description:      d.description,
		HasClientHandler: d.clientHandler != nil,
		HasServerHandler: d.serverHandler != nil,
		HasRender:        d.render != nil,
		HasMiddleware:    len(d.middleware) > 0,
		ServerOnly:       d.serverOnly,
		Metadata:         d.metadata.toMap(),
	}
	if len(d.tags) > 0 {
		desc.Tags = d.Tags()
	}
	if d.inputSchema != nil {
		desc.InputSchema = d.inputSchema.JSONSchema()
	}
	return desc
}
