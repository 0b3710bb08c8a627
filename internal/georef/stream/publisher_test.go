package stream

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/EthanOConnor/ml-georeferencer/internal/georef"
	"github.com/EthanOConnor/ml-georeferencer/internal/monitoring"
)

func TestMain(m *testing.M) {
	// Mute the per-frame publish diagnostics; concurrency tests publish
	// thousands of frames.
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func testFrame(method string) *SolveFrame {
	stack := georef.TransformStack{Transforms: []georef.TransformKind{
		georef.Similarity{Scale: 2, Theta: 0.5, TX: 10, TY: 20},
	}}
	q := georef.QualityMetrics{RMSE: 1.25, P90Error: 2.5, Unit: "px"}
	return NewSolveFrame(method, stack, q, 4, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ListenAddr != "localhost:50051" {
		t.Errorf("expected ListenAddr=localhost:50051, got %s", cfg.ListenAddr)
	}
	if cfg.MaxClients != 5 {
		t.Errorf("expected MaxClients=5, got %d", cfg.MaxClients)
	}
}

func TestNewPublisher(t *testing.T) {
	pub := NewPublisher(DefaultConfig())

	if pub == nil {
		t.Fatal("expected non-nil Publisher")
	}
	if pub.frameChan == nil {
		t.Error("expected non-nil frameChan")
	}
	if pub.clients == nil {
		t.Error("expected non-nil clients map")
	}
	if pub.stopCh == nil {
		t.Error("expected non-nil stopCh")
	}
}

func TestPublisher_Stats_NotRunning(t *testing.T) {
	pub := NewPublisher(DefaultConfig())

	stats := pub.Stats()

	if stats.Running {
		t.Error("expected Running=false before Start")
	}
	if stats.FrameCount != 0 {
		t.Errorf("expected FrameCount=0, got %d", stats.FrameCount)
	}
	if stats.ClientCount != 0 {
		t.Errorf("expected ClientCount=0, got %d", stats.ClientCount)
	}
}

func TestPublisher_StartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = "localhost:0" // Use random available port
	pub := NewPublisher(cfg)

	if err := pub.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if !pub.Stats().Running {
		t.Error("expected Running=true after Start")
	}
	if pub.Addr() == "" {
		t.Error("expected non-empty Addr after Start")
	}

	// Start again should fail
	if err := pub.Start(); err == nil {
		t.Error("expected error when starting already running publisher")
	}

	pub.Stop()

	if pub.Stats().Running {
		t.Error("expected Running=false after Stop")
	}

	// Stop again should be safe
	pub.Stop()
}

func TestPublisher_Addr_NotStarted(t *testing.T) {
	pub := NewPublisher(DefaultConfig())

	if addr := pub.Addr(); addr != "" {
		t.Errorf("expected empty Addr before Start, got %s", addr)
	}
}

func TestPublisher_Publish_NotRunning(t *testing.T) {
	pub := NewPublisher(DefaultConfig())

	// Publish should be safe even when not running
	pub.Publish(testFrame("similarity"))

	if stats := pub.Stats(); stats.FrameCount != 0 {
		t.Errorf("expected FrameCount=0 when not running, got %d", stats.FrameCount)
	}
}

func TestPublisher_Publish_NilFrame(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = "localhost:0"
	pub := NewPublisher(cfg)

	if err := pub.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pub.Stop()

	pub.Publish(nil)

	time.Sleep(10 * time.Millisecond)

	if stats := pub.Stats(); stats.FrameCount != 0 {
		t.Errorf("expected FrameCount=0 for nil, got %d", stats.FrameCount)
	}
}

func TestPublisher_Publish_Running(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = "localhost:0"
	pub := NewPublisher(cfg)

	if err := pub.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pub.Stop()

	frame := testFrame("similarity")
	pub.Publish(frame)

	// Give the broadcast loop time to process
	time.Sleep(10 * time.Millisecond)

	if stats := pub.Stats(); stats.FrameCount != 1 {
		t.Errorf("expected FrameCount=1, got %d", stats.FrameCount)
	}
	if frame.FrameID != 1 {
		t.Errorf("expected publisher to assign FrameID=1, got %d", frame.FrameID)
	}
}

func TestPublisher_AddRemoveClient(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = "localhost:0"
	pub := NewPublisher(cfg)

	if err := pub.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pub.Stop()

	client := pub.addClient("client-1", streamFilter{})
	if client == nil {
		t.Fatal("expected non-nil client")
	}
	if client.id != "client-1" {
		t.Errorf("expected id=client-1, got %s", client.id)
	}

	if stats := pub.Stats(); stats.ClientCount != 1 {
		t.Errorf("expected ClientCount=1, got %d", stats.ClientCount)
	}

	pub.removeClient("client-1")

	if stats := pub.Stats(); stats.ClientCount != 0 {
		t.Errorf("expected ClientCount=0 after remove, got %d", stats.ClientCount)
	}

	// Remove non-existent client should be safe
	pub.removeClient("client-99")

	if stats := pub.Stats(); stats.ClientCount != 0 {
		t.Errorf("expected ClientCount=0, got %d", stats.ClientCount)
	}
}

func TestPublisher_BroadcastToClients(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = "localhost:0"
	pub := NewPublisher(cfg)

	if err := pub.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pub.Stop()

	client := pub.addClient("client-1", streamFilter{})

	pub.Publish(testFrame("similarity"))

	select {
	case received := <-client.frameCh:
		if received.FrameID != 1 {
			t.Errorf("expected FrameID=1, got %d", received.FrameID)
		}
		if received.Method != "similarity" {
			t.Errorf("expected method=similarity, got %s", received.Method)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for frame")
	}
}

func TestPublisher_BroadcastRespectsFilter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = "localhost:0"
	pub := NewPublisher(cfg)

	if err := pub.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pub.Stop()

	filter := streamFilter{methods: map[string]bool{"affine": true}}
	client := pub.addClient("client-1", filter)

	pub.Publish(testFrame("similarity"))
	pub.Publish(testFrame("affine"))

	select {
	case received := <-client.frameCh:
		if received.Method != "affine" {
			t.Errorf("expected only affine frames, got %s", received.Method)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for affine frame")
	}

	// The similarity frame never arrives.
	select {
	case extra := <-client.frameCh:
		t.Errorf("unexpected extra frame: method=%s", extra.Method)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPublisher_FrameDropOnSlowClient(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = "localhost:0"
	pub := NewPublisher(cfg)

	if err := pub.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pub.Stop()

	client := pub.addClient("client-1", streamFilter{})

	// Fill up client's buffer (10 frames)
	for i := 0; i < 15; i++ {
		pub.Publish(testFrame("similarity"))
		time.Sleep(1 * time.Millisecond)
	}

	time.Sleep(50 * time.Millisecond)

	count := 0
	for {
		select {
		case <-client.frameCh:
			count++
		default:
			goto done
		}
	}
done:

	// Should have received up to buffer size (10)
	if count > 10 {
		t.Errorf("expected at most 10 frames (buffer size), got %d", count)
	}
	if pub.Stats().DroppedFrames == 0 {
		t.Error("expected dropped frames to be counted")
	}
}

func TestPublisher_ConcurrentPublish(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = "localhost:0"
	pub := NewPublisher(cfg)

	if err := pub.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pub.Stop()

	var wg sync.WaitGroup
	numGoroutines := 10
	framesPerGoroutine := 10

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < framesPerGoroutine; j++ {
				pub.Publish(testFrame("similarity"))
			}
		}()
	}

	wg.Wait()

	// Give broadcast loop time to process
	time.Sleep(50 * time.Millisecond)

	stats := pub.Stats()
	expectedFrames := uint64(numGoroutines * framesPerGoroutine)
	if stats.FrameCount != expectedFrames {
		t.Errorf("expected FrameCount=%d, got %d", expectedFrames, stats.FrameCount)
	}
}

func TestPublisher_Restart(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = "localhost:0"
	pub := NewPublisher(cfg)

	if err := pub.Start(); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	pub.Stop()

	if err := pub.Start(); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	defer pub.Stop()

	client := pub.addClient("client-1", streamFilter{})
	pub.Publish(testFrame("similarity"))

	select {
	case <-client.frameCh:
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for frame after restart")
	}
}

func TestPublisherStats_Fields(t *testing.T) {
	stats := PublisherStats{
		FrameCount:    100,
		ClientCount:   5,
		DroppedFrames: 2,
		Running:       true,
	}

	if stats.FrameCount != 100 {
		t.Errorf("expected FrameCount=100, got %d", stats.FrameCount)
	}
	if stats.ClientCount != 5 {
		t.Errorf("expected ClientCount=5, got %d", stats.ClientCount)
	}
	if stats.DroppedFrames != 2 {
		t.Errorf("expected DroppedFrames=2, got %d", stats.DroppedFrames)
	}
	if !stats.Running {
		t.Error("expected Running=true")
	}
}
