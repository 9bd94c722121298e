package tlscred

// DHParams is an opaque, advisory Diffie-Hellman parameter handle. Per the
// contract's scope, DH-parameter generation and parsing are an external
// collaborator's job; this package treats a DHParams value as a black box,
// passed through to a server's Credentials but never interpreted. Nothing
// in tlscontext wires a DHParams into *tls.Config, since crypto/tls has no
// notion of externally supplied finite-field DH groups to plug in.
type DHParams struct {
	blob   []byte
	format BlobFormat
}

// DefaultDHParams returns the zero-value, default-constructed DHParams.
func DefaultDHParams() DHParams {
	return DHParams{}
}

// ParseDHParams wraps blob as an opaque DHParams handle without inspecting
// it.
func ParseDHParams(blob []byte, format BlobFormat) DHParams {
	return DHParams{blob: blob, format: format}
}

// SetDHParams attaches an advisory DH-parameter handle to a server's
// credentials. It has no effect on the derived *tls.Config; it exists so
// callers that already have DH parameters from legacy configuration have
// somewhere to put them without the factory rejecting the call.
func (c *Credentials) SetDHParams(params DHParams) {
	c.dhParams = params
}

// DHParams returns the advisory DH-parameter handle previously set via
// SetDHParams.
func (c *Credentials) DHParams() DHParams {
	return c.dhParams
}
