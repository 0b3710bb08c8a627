package stream

import (
	"fmt"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// SolveStreamService is the fully qualified gRPC service name.
const SolveStreamService = "georef.v1.SolveStream"

// solveStreamServer is the handler contract for the stream service. It
// mirrors what protoc would generate for a server-streaming RPC.
type solveStreamServer interface {
	StreamSolves(*structpb.Struct, grpc.ServerStream) error
}

// streamService implements solveStreamServer on top of a Publisher.
type streamService struct {
	pub *Publisher
}

var _ solveStreamServer = (*streamService)(nil)

// StreamSolves registers the caller with the publisher and forwards
// solve frames until the client disconnects. The request Struct may
// carry a "methods" list restricting which solves are forwarded.
func (s *streamService) StreamSolves(req *structpb.Struct, stream grpc.ServerStream) error {
	if max := s.pub.config.MaxClients; max > 0 && int(s.pub.clientCount.Load()) >= max {
		return status.Error(codes.ResourceExhausted, "max streaming clients reached")
	}

	filter := filterFromRequest(req)
	clientID := fmt.Sprintf("grpc-%d", time.Now().UnixNano())
	client := s.pub.addClient(clientID, filter)
	defer s.pub.removeClient(clientID)

	log.Printf("[Stream] StreamSolves started: client=%s methods=%v", clientID, filter.methodList())

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-client.frameCh:
			msg, err := frame.ToStruct()
			if err != nil {
				return status.Errorf(codes.Internal, "encode frame %d: %v", frame.FrameID, err)
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

// streamFilter is the client's requested filtering, decoded from the
// open-ended request Struct.
type streamFilter struct {
	methods map[string]bool
}

// filterFromRequest reads an optional "methods" string list from the
// request. An absent or empty list means every solve is forwarded.
func filterFromRequest(req *structpb.Struct) streamFilter {
	f := streamFilter{}
	if req == nil {
		return f
	}
	lv, ok := req.GetFields()["methods"]
	if !ok {
		return f
	}
	list := lv.GetListValue()
	if list == nil {
		return f
	}
	for _, v := range list.GetValues() {
		if m := v.GetStringValue(); m != "" {
			if f.methods == nil {
				f.methods = make(map[string]bool)
			}
			f.methods[m] = true
		}
	}
	return f
}

// allow reports whether the frame passes the client's method filter.
func (f streamFilter) allow(frame *SolveFrame) bool {
	if len(f.methods) == 0 {
		return true
	}
	return f.methods[frame.Method]
}

// methodList returns the filtered methods for logging.
func (f streamFilter) methodList() []string {
	if len(f.methods) == 0 {
		return nil
	}
	list := make([]string, 0, len(f.methods))
	for m := range f.methods {
		list = append(list, m)
	}
	return list
}

// streamSolvesHandler adapts the wire stream onto the handler contract,
// the same way generated service glue does.
func streamSolvesHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(solveStreamServer).StreamSolves(req, stream)
}

// solveStreamServiceDesc registers StreamSolves without generated
// bindings; both directions carry structpb.Struct messages.
var solveStreamServiceDesc = grpc.ServiceDesc{
	ServiceName: SolveStreamService,
	HandlerType: (*solveStreamServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamSolves",
			Handler:       streamSolvesHandler,
			ServerStreams: true,
		},
	},
}
