package nfs

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Code returns the gRPC code that carries s.
func (s Status) Code() codes.Code {
	switch s {
	case StatusOK:
		return codes.OK
	case StatusErrNoEnt:
		return codes.NotFound
	case StatusErrExist:
		return codes.AlreadyExists
	case StatusErrInval, StatusErrBadHandle, StatusErrBadXDR, StatusErrBadIOMode, StatusErrUnknownLayout:
		return codes.InvalidArgument
	case StatusErrBadLayout, StatusErrNoMatchLayout:
		return codes.FailedPrecondition
	case StatusErrNoSpc:
		return codes.ResourceExhausted
	case StatusErrNXIO:
		return codes.OutOfRange
	case StatusErrNotSupp:
		return codes.Unimplemented
	case StatusErrLayoutUnavail:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// ToGRPC converts err into a gRPC status error. The NFS status travels
// as a UInt32Value detail so the client can recover it exactly.
func ToGRPC(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	nst := MapErrorToStatus(err)
	st := status.New(nst.Code(), err.Error())
	if withDetail, derr := st.WithDetails(wrapperspb.UInt32(uint32(nst))); derr == nil {
		st = withDetail
	}
	return st.Err()
}

// FromGRPC recovers the NFS status from an error returned by the device
// service. Errors without one, such as transport failures, come back
// unchanged.
func FromGRPC(op string, err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, d := range st.Details() {
		if v, ok := d.(*wrapperspb.UInt32Value); ok {
			return StatusToError(op, Status(v.GetValue()), st.Message())
		}
	}
	return err
}
