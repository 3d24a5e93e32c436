// Package bus implements the MessageBus: a topic-keyed pub/sub primitive
// used by the IPC layer, backed by an embedded NATS server so delivery
// works identically whether the subscriber lives in this process or a
// future out-of-process agent.
package bus

import (
	"fmt"
	"net"
	"os"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

// ServerConfig controls the embedded NATS server.
type ServerConfig struct {
	Port      int
	DataDir   string
	JetStream bool
}

// Server wraps an embedded, in-process NATS server instance.
type Server struct {
	ns   *natsserver.Server
	port int
}

// NewServer starts an embedded NATS server on cfg.Port (0 picks a random
// free port, used by tests and single-node deployments alike).
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("bus: create data dir: %w", err)
		}
	}

	opts := &natsserver.Options{
		Port:       cfg.Port,
		NoLog:      true,
		NoSigs:     true,
		JetStream:  cfg.JetStream,
		StoreDir:   cfg.DataDir,
		MaxPayload: 16 << 20,
	}

	ns, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("bus: create nats server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("bus: nats server not ready")
	}

	actualPort := ns.Addr().(*net.TCPAddr).Port

	return &Server{ns: ns, port: actualPort}, nil
}

// NewTestServer starts a Server on a random port, for tests.
func NewTestServer() (*Server, error) {
	return NewServer(ServerConfig{Port: 0, DataDir: ""})
}

// ClientURL returns the URL a MessageBus client should dial.
func (s *Server) ClientURL() string {
	return s.ns.ClientURL()
}

// Port returns the TCP port actually bound.
func (s *Server) Port() int {
	return s.port
}

// NumClients returns the number of connected clients.
func (s *Server) NumClients() int {
	return int(s.ns.NumClients())
}

// Close shuts the embedded server down, waiting for completion.
func (s *Server) Close() {
	s.ns.Shutdown()
	s.ns.WaitForShutdown()
}
