package schema

// ResourceTemplate describes a template for resources available on the server.
type ResourceTemplate struct {
	Annotations *Annotations `json:"annotations,omitempty"`
	Description string       `json:"description,omitempty"` // Template description
	MimeType    string       `json:"mimeType,omitempty"`    // MIME type if all resources have same type
	Name        string       `json:"name"`                  // Human-readable name
	URITemplate string       `json:"uriTemplate"`           // URI template for resources
}

// ListResourceTemplatesRequest requests a list of resource templates.
// Sent from the client to request a list of resource templates the server has.
type ListResourceTemplatesRequest struct {
	Method string                             `json:"method"` // const: "resources/templates/list"
	Params ListResourceTemplatesRequestParams `json:"params,omitempty"`
}

// ListResourceTemplatesRequestParams contains parameters for listing resource templates.
type ListResourceTemplatesRequestParams struct {
	PaginatedRequestParams // Embeds pagination cursor
}

// ListResourceTemplatesResult is the response to a resource templates list request.
// The server's response to a resources/templates/list request from the client.
type ListResourceTemplatesResult struct {
	PaginatedResult                      // Embeds next cursor
	Meta              Meta               `json:"_meta,omitempty"`   // Reserved for metadata
	ResourceTemplates []ResourceTemplate `json:"resourceTemplates"` // Available resource templates
}
