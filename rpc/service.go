package rpc

import "google.golang.org/grpc"

// Service pairs a gRPC service description with the value that serves
// it, ready to be registered on a Server at build time.
type Service struct {
	Desc grpc.ServiceDesc
	Impl interface{}
}

// NewService wraps desc and impl for registration.
func NewService(desc grpc.ServiceDesc, impl interface{}) Service {
	return Service{Desc: desc, Impl: impl}
}
