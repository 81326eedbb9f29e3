// Package user carries the identity a transport endpoint is created on
// behalf of. The transport treats it as opaque: the client stamps it
// onto outbound streams and the server runtime may use it for
// authentication wiring.
package user

// State identifies the authenticated caller.
type State struct {
	// Name is the principal name, e.g. the journal master's service user.
	Name string
}

// MetadataKey is the gRPC metadata key the caller identity travels under.
const MetadataKey = "alluxio-user"

// New returns a State for the named principal.
func New(name string) *State {
	return &State{Name: name}
}
