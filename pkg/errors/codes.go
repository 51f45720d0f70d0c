// Package errors provides the unified structured error type used across every
// layer of the evidence engine: parsing, chunking, storage, and retrieval.
package errors

// ErrorCode is a typed, closed classification of failure categories. Callers
// branch on ErrorCode rather than on error string contents.
type ErrorCode int

const (
	// CodeOK indicates no error. Used only as a zero-value sentinel returned
	// by GetCode when err is nil.
	CodeOK ErrorCode = iota
	// CodeUnknown is the fallback for errors not produced by this package.
	CodeUnknown
	// CodeValidation marks a malformed request or argument: missing required
	// field, out-of-range value, unparsable input.
	CodeValidation
	// CodeNotFound marks a lookup that found nothing.
	CodeNotFound
	// CodeConflict marks a write that lost a race or violated a uniqueness
	// constraint in a way the caller should not treat as fatal.
	CodeConflict
	// CodeDBConnectionError marks failure to obtain or keep a database
	// connection.
	CodeDBConnectionError
	// CodeDBQueryError marks a database round-trip that returned an error.
	CodeDBQueryError
	// CodeSerialization marks a marshal/unmarshal failure.
	CodeSerialization
	// CodeInternal is the catch-all for unexpected failures with no more
	// specific code.
	CodeInternal
	// CodeEmbeddingDimensionMismatch marks an embedding vector whose length
	// does not equal the configured dimension. Always fatal.
	CodeEmbeddingDimensionMismatch
	// CodeNetworkTransient marks a timeout, connection reset, or 5xx response
	// that a caller may retry.
	CodeNetworkTransient
	// CodeNetworkPermanent marks a 404 or other response that will not
	// succeed on retry.
	CodeNetworkPermanent
)

var codeNames = map[ErrorCode]string{
	CodeOK:                         "OK",
	CodeUnknown:                    "UNKNOWN",
	CodeValidation:                 "VALIDATION",
	CodeNotFound:                   "NOT_FOUND",
	CodeConflict:                   "CONFLICT",
	CodeDBConnectionError:          "DB_CONNECTION_ERROR",
	CodeDBQueryError:               "DB_QUERY_ERROR",
	CodeSerialization:              "SERIALIZATION",
	CodeInternal:                   "INTERNAL",
	CodeEmbeddingDimensionMismatch: "EMBEDDING_DIMENSION_MISMATCH",
	CodeNetworkTransient:           "NETWORK_TRANSIENT",
	CodeNetworkPermanent:           "NETWORK_PERMANENT",
}

// String renders the code's symbolic name, falling back to "UNKNOWN" for any
// value outside the declared set.
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}
