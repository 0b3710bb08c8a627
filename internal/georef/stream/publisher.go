package stream

import (
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"

	"github.com/EthanOConnor/ml-georeferencer/internal/monitoring"
)

// Config holds the solve stream server settings.
type Config struct {
	// ListenAddr is the gRPC listen address, e.g. "localhost:50051".
	// Port 0 picks a free port; Addr reports the bound one.
	ListenAddr string

	// MaxClients caps concurrent streaming clients.
	MaxClients int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr: "localhost:50051",
		MaxClients: 5,
	}
}

// Publisher owns the gRPC server and fans solve frames out to every
// subscribed client.
type Publisher struct {
	config   Config
	server   *grpc.Server
	listener net.Listener

	// Broadcast
	frameChan chan *SolveFrame
	clients   map[string]*clientStream
	clientsMu sync.RWMutex

	// Stats
	frameCount    atomic.Uint64
	clientCount   atomic.Int32
	droppedFrames atomic.Uint64

	// Lifecycle
	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// clientStream is one subscriber with its delivery queue and filter.
type clientStream struct {
	id      string
	filter  streamFilter
	frameCh chan *SolveFrame
	doneCh  chan struct{}
}

// NewPublisher builds a Publisher; call Start to begin serving.
func NewPublisher(cfg Config) *Publisher {
	return &Publisher{
		config:    cfg,
		frameChan: make(chan *SolveFrame, 100),
		clients:   make(map[string]*clientStream),
		stopCh:    make(chan struct{}),
	}
}

// Start binds the listener and launches the gRPC server and the
// broadcast loop.
func (p *Publisher) Start() error {
	if p.running.Load() {
		return fmt.Errorf("publisher already running")
	}

	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	p.listener = lis

	// Solve frames are small; even polyline-heavy stacks fit well
	// under this cap.
	const maxMsgSize = 4 * 1024 * 1024
	p.server = grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMsgSize),
		grpc.MaxSendMsgSize(maxMsgSize),
	)
	p.server.RegisterService(&solveStreamServiceDesc, &streamService{pub: p})

	// Remake stopCh so a stopped publisher can be started again.
	p.stopCh = make(chan struct{})
	p.running.Store(true)

	p.wg.Add(1)
	go p.broadcastLoop()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Printf("[Stream] gRPC server listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			log.Printf("[Stream] gRPC server error: %v", err)
		}
	}()

	return nil
}

// Stop drains the server gracefully and waits for the broadcast loop.
func (p *Publisher) Stop() {
	if !p.running.Load() {
		return
	}
	p.running.Store(false)
	close(p.stopCh)

	if p.server != nil {
		p.server.GracefulStop()
	}
	if p.listener != nil {
		p.listener.Close()
	}

	p.wg.Wait()
	log.Printf("[Stream] gRPC server stopped")
}

// Addr returns the bound listen address, empty before Start.
func (p *Publisher) Addr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// Publish broadcasts a solve frame to all connected clients, assigning
// it the next frame id. Frames are dropped rather than blocking when
// the broadcast queue is full.
func (p *Publisher) Publish(frame *SolveFrame) {
	if !p.running.Load() || frame == nil {
		return
	}

	frame.FrameID = p.frameCount.Add(1)

	select {
	case p.frameChan <- frame:
		monitoring.Logf("[Stream] Published solve frame %d: method=%s pairs=%d rmse=%.3f clients=%d",
			frame.FrameID, frame.Method, frame.PairCount, frame.RMSE, p.clientCount.Load())
	default:
		dropped := p.droppedFrames.Add(1)
		monitoring.Logf("[Stream] DROPPED frame %d (total dropped: %d), channel full", frame.FrameID, dropped)
	}
}

// broadcastLoop fans each frame out to the clients whose filter
// accepts it.
func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case frame := <-p.frameChan:
			p.clientsMu.RLock()
			for _, client := range p.clients {
				if !client.filter.allow(frame) {
					continue
				}
				select {
				case client.frameCh <- frame:
				default:
					// Slow client; skip it rather than stall the loop.
					p.droppedFrames.Add(1)
				}
			}
			p.clientsMu.RUnlock()
		}
	}
}

func (p *Publisher) addClient(id string, filter streamFilter) *clientStream {
	client := &clientStream{
		id:      id,
		filter:  filter,
		frameCh: make(chan *SolveFrame, 10),
		doneCh:  make(chan struct{}),
	}

	p.clientsMu.Lock()
	p.clients[id] = client
	p.clientsMu.Unlock()

	p.clientCount.Add(1)
	log.Printf("[Stream] Client connected: %s (total: %d)", id, p.clientCount.Load())

	return client
}

func (p *Publisher) removeClient(id string) {
	p.clientsMu.Lock()
	client, ok := p.clients[id]
	if ok {
		close(client.doneCh)
		delete(p.clients, id)
	}
	p.clientsMu.Unlock()

	if ok {
		p.clientCount.Add(-1)
		log.Printf("[Stream] Client disconnected: %s (remaining: %d)", id, p.clientCount.Load())
	}
}

// Stats snapshots the publisher counters.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		FrameCount:    p.frameCount.Load(),
		ClientCount:   p.clientCount.Load(),
		DroppedFrames: p.droppedFrames.Load(),
		Running:       p.running.Load(),
	}
}

// PublisherStats is the counter snapshot reported on /api/stream/stats.
type PublisherStats struct {
	FrameCount    uint64 `json:"frame_count"`
	ClientCount   int32  `json:"client_count"`
	DroppedFrames uint64 `json:"dropped_frames"`
	Running       bool   `json:"running"`
}
