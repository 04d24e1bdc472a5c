package server

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/blocklayout/pkg/blockaddr"
	"github.com/example/blocklayout/pkg/fs"
	"github.com/example/blocklayout/pkg/fs/blockfs"
	"github.com/example/blocklayout/pkg/nfs"
)

var serviceDesc = grpc.ServiceDesc{
	ServiceName: nfs.ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetDeviceList", Handler: unary(nfs.MethodGetDeviceList, newEmpty, (*Server).getDeviceList)},
		{MethodName: "GetDeviceInfo", Handler: unary(nfs.MethodGetDeviceInfo, newBytes, (*Server).getDeviceInfo)},
		{MethodName: "Lookup", Handler: unary(nfs.MethodLookup, newString, (*Server).lookup)},
		{MethodName: "GetAttr", Handler: unary(nfs.MethodGetAttr, newBytes, (*Server).getAttr)},
		{MethodName: "LayoutGet", Handler: unary(nfs.MethodLayoutGet, newBytes, (*Server).layoutGet)},
		{MethodName: "LayoutCommit", Handler: unary(nfs.MethodLayoutCommit, newBytes, (*Server).layoutCommit)},
	},
	Streams: []grpc.StreamDesc{},
}

func newEmpty() *emptypb.Empty { return new(emptypb.Empty) }

func newBytes() *wrapperspb.BytesValue { return new(wrapperspb.BytesValue) }

func newString() *wrapperspb.StringValue { return new(wrapperspb.StringValue) }

// unary adapts a typed method to a grpc.MethodHandler, running it through
// the worker pool and request logging.
func unary[Req proto.Message](fullMethod string, newReq func() Req, call func(*Server, context.Context, Req) (proto.Message, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	op := fullMethod[strings.LastIndexByte(fullMethod, '/')+1:]
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(*Server)
		handler := func(ctx context.Context, req any) (any, error) {
			return s.processRequest(ctx, op, func(ctx context.Context) (proto.Message, error) {
				return call(s, ctx, req.(Req))
			})
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, handler)
	}
}

func (s *Server) getDeviceList(ctx context.Context, _ *emptypb.Empty) (proto.Message, error) {
	return nfs.DeviceListToStruct(s.vol.Verifier(), []blockaddr.DeviceID{s.vol.DeviceID()})
}

func (s *Server) getDeviceInfo(ctx context.Context, in *wrapperspb.BytesValue) (proto.Message, error) {
	raw := in.GetValue()
	if len(raw) != blockaddr.DeviceIDSize {
		return nil, nfs.NewError("getdeviceinfo", nfs.StatusErrInval, fmt.Sprintf("device id is %d bytes", len(raw)), nil)
	}
	var id blockaddr.DeviceID
	copy(id[:], raw)
	if id != s.vol.DeviceID() {
		return nil, fs.NewError("getdeviceinfo", id.String(), fs.ErrNotExist)
	}
	return wrapperspb.Bytes(s.vol.Address()), nil
}

func (s *Server) filesystem(op string) (*blockfs.FileSystem, error) {
	if s.fsys == nil {
		return nil, fs.NewError(op, "", fs.ErrNotSupported)
	}
	return s.fsys, nil
}

func (s *Server) lookup(ctx context.Context, in *wrapperspb.StringValue) (proto.Message, error) {
	fsys, err := s.filesystem("lookup")
	if err != nil {
		return nil, err
	}
	h, err := fsys.Lookup(ctx, in.GetValue())
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bytes(h.Serialize()), nil
}

func (s *Server) getAttr(ctx context.Context, in *wrapperspb.BytesValue) (proto.Message, error) {
	fsys, err := s.filesystem("getattr")
	if err != nil {
		return nil, err
	}
	h, err := fs.DeserializeFileHandle(in.GetValue())
	if err != nil {
		return nil, err
	}
	info, err := fsys.GetAttr(ctx, h)
	if err != nil {
		return nil, err
	}
	return nfs.FileInfoToStruct(info)
}

func (s *Server) layoutGet(ctx context.Context, in *wrapperspb.BytesValue) (proto.Message, error) {
	fsys, err := s.filesystem("layoutget")
	if err != nil {
		return nil, err
	}
	args, err := blockaddr.UnmarshalLayoutGetArgs(in.GetValue())
	if err != nil {
		return nil, err
	}
	h, err := fs.DeserializeFileHandle(args.FileHandle)
	if err != nil {
		return nil, err
	}
	l, err := fsys.LayoutGet(ctx, h, args.Offset, args.Length, blockfs.IOMode(args.IOMode))
	if err != nil {
		return nil, err
	}
	res := blockaddr.LayoutGetResult{
		Offset: l.Offset,
		Length: l.Length,
		IOMode: uint32(l.IOMode),
		Layout: l.Body,
	}
	return wrapperspb.Bytes(res.Marshal()), nil
}

func (s *Server) layoutCommit(ctx context.Context, in *wrapperspb.BytesValue) (proto.Message, error) {
	fsys, err := s.filesystem("layoutcommit")
	if err != nil {
		return nil, err
	}
	args, err := blockaddr.UnmarshalLayoutCommitArgs(in.GetValue())
	if err != nil {
		return nil, err
	}
	h, err := fs.DeserializeFileHandle(args.FileHandle)
	if err != nil {
		return nil, err
	}
	lastWrite := int64(-1)
	if args.NewOffset {
		lastWrite = int64(args.LastWriteOffset)
	}
	c, err := fsys.LayoutCommit(ctx, h, args.Offset, args.Length, blockaddr.MarshalLayoutUpdate(args.Update), lastWrite)
	if err != nil {
		return nil, err
	}
	res := blockaddr.LayoutCommitResult{SizeChanged: c.SizeChanged, NewSize: uint64(c.NewSize)}
	return wrapperspb.Bytes(res.Marshal()), nil
}
