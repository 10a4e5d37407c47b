package schema

// ResourceContents represents the actual content of a resource. Exactly one
// of Text or Blob is set.
type ResourceContents struct {
	URI      string  `json:"uri"`                // Resource URI
	MimeType string  `json:"mimeType,omitempty"` // MIME type if known
	Text     *string `json:"text,omitempty"`     // Resource text content
	Blob     *string `json:"blob,omitempty"`     // Base64-encoded binary data
}

// Resource describes a resource the server can read.
type Resource struct {
	Annotations *Annotations `json:"annotations,omitempty"`
	Description string       `json:"description,omitempty"` // Resource description
	MimeType    string       `json:"mimeType,omitempty"`    // MIME type if known
	Name        string       `json:"name"`                  // Human-readable name
	Size        int          `json:"size,omitempty"`        // Size in bytes if known
	URI         string       `json:"uri"`                   // Resource URI
}

// ListResourcesRequest requests a list of available resources.
// Sent from the client to request a list of resources the server has.
type ListResourcesRequest struct {
	Method string                     `json:"method"` // const: "resources/list"
	Params ListResourcesRequestParams `json:"params,omitempty"`
}

// ListResourcesRequestParams contains parameters for resource listing requests.
type ListResourcesRequestParams struct {
	PaginatedRequestParams // Embeds pagination cursor
}

// ListResourcesResult is the response to a resources list request.
type ListResourcesResult struct {
	PaginatedResult            // Embeds next cursor
	Meta            Meta       `json:"_meta,omitempty"` // Reserved for metadata
	Resources       []Resource `json:"resources"`       // Available resources
}

// ReadResourceRequest requests the content of a resource.
// Sent from the client to the server, to read a specific resource URI.
type ReadResourceRequest struct {
	Method string                    `json:"method"` // const: "resources/read"
	Params ReadResourceRequestParams `json:"params"`
}

// ReadResourceRequestParams contains parameters for resource reading.
type ReadResourceRequestParams struct {
	// The URI of the resource to read. The URI can use any protocol;
	// it is up to the server how to interpret it.
	URI string `json:"uri"` // @format uri
}

// ReadResourceResult contains the content of a requested resource.
// The server's response to a resources/read request from the client.
type ReadResourceResult struct {
	Meta     Meta               `json:"_meta,omitempty"` // Reserved for metadata
	Contents []ResourceContents `json:"contents"`        // Resource contents (Text or Blob)
}

// SubscribeRequest subscribes to change notifications for a resource.
type SubscribeRequest struct {
	Method string                 `json:"method"` // const: "resources/subscribe"
	Params SubscribeRequestParams `json:"params"`
}

// SubscribeRequestParams contains parameters for resource subscriptions.
type SubscribeRequestParams struct {
	URI string `json:"uri"` // The URI of the resource to watch
}

// UnsubscribeRequest removes a prior resource subscription.
type UnsubscribeRequest struct {
	Method string                 `json:"method"` // const: "resources/unsubscribe"
	Params SubscribeRequestParams `json:"params"`
}

// ResourceUpdatedNotification informs a subscriber that a resource changed.
type ResourceUpdatedNotification struct {
	Method string                            `json:"method"` // const: "notifications/resources/updated"
	Params ResourceUpdatedNotificationParams `json:"params"`
}

// ResourceUpdatedNotificationParams identifies the changed resource.
type ResourceUpdatedNotificationParams struct {
	URI string `json:"uri"`
}

// ResourceListChangedNotification informs that available resources have changed.
type ResourceListChangedNotification struct {
	Method string                 `json:"method"` // const: "notifications/resources/list_changed"
	Params map[string]interface{} `json:"params,omitempty"`
}

// ResourceReference identifies a resource or template for completion.
type ResourceReference struct {
	Type string `json:"type"` // const: "ref/resource"
	URI  string `json:"uri"`  // Resource URI or template
}
