package schema

// Cursor is an opaque token used to represent a cursor for pagination.
type Cursor string

// PaginatedRequestParams represents parameters for a request supporting pagination.
type PaginatedRequestParams struct {
	// An opaque token representing the current pagination position.
	// If provided, the server should return results starting after this cursor.
	Cursor *Cursor `json:"cursor,omitempty"`
}

// PaginatedResult represents fields in a response supporting pagination.
type PaginatedResult struct {
	// An opaque token for the next page, absent when the listing is exhausted.
	NextCursor *Cursor `json:"nextCursor,omitempty"`
}
