// Package stream provides gRPC streaming of solve results to live
// clients (map editors, dashboards). The wire messages are protobuf
// Structs so no generated bindings are required.
package stream

import (
	"encoding/json"
	"time"

	"github.com/EthanOConnor/ml-georeferencer/internal/georef"
	"google.golang.org/protobuf/types/known/structpb"
)

// SolveFrame is one solve update broadcast to streaming clients.
// Timestamps travel as RFC3339 strings: Struct numbers are float64 and
// would round nanosecond epochs.
type SolveFrame struct {
	FrameID   uint64                `json:"frame_id"`
	Timestamp string                `json:"timestamp"`
	Method    string                `json:"method"`
	Unit      string                `json:"unit"`
	RMSE      float64               `json:"rmse"`
	P90Error  float64               `json:"p90_error"`
	PairCount int                   `json:"pair_count"`
	Stack     georef.TransformStack `json:"stack"`
	Warnings  []string              `json:"warnings,omitempty"`
}

// NewSolveFrame assembles the streamable form of one solve. The frame
// id is assigned by the publisher.
func NewSolveFrame(method string, stack georef.TransformStack, q georef.QualityMetrics, pairCount int, ts time.Time) *SolveFrame {
	return &SolveFrame{
		Timestamp: ts.UTC().Format(time.RFC3339),
		Method:    method,
		Unit:      q.Unit,
		RMSE:      q.RMSE,
		P90Error:  q.P90Error,
		PairCount: pairCount,
		Stack:     stack,
		Warnings:  q.Warnings,
	}
}

// ToStruct encodes the frame as a protobuf Struct for the wire.
func (f *SolveFrame) ToStruct() (*structpb.Struct, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	s := new(structpb.Struct)
	if err := s.UnmarshalJSON(b); err != nil {
		return nil, err
	}
	return s, nil
}

// FrameFromStruct decodes a wire Struct back into a SolveFrame.
func FrameFromStruct(s *structpb.Struct) (*SolveFrame, error) {
	b, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var f SolveFrame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	return &f, nil
}
