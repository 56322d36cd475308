package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/vectron-cce/cce/placementdriver/internal/fsm"
	pdRaft "github.com/vectron-cce/cce/placementdriver/internal/raft"
	"github.com/vectron-cce/cce/placementdriver/internal/server"
	ccepb "github.com/vectron-cce/cce/shared/proto/ccrpc"
	pb "github.com/vectron-cce/cce/shared/proto/placementdriver"
	"google.golang.org/grpc"
)

var (
	grpcAddr string
	raftAddr string
	httpAddr string
	nodeID   uint64
	dataDir  string
	peers    string
	join     bool
)

func init() {
	flag.StringVar(&grpcAddr, "grpc-addr", "localhost:6001", "gRPC listen address")
	flag.StringVar(&raftAddr, "raft-addr", "localhost:7001", "Raft listen address")
	flag.StringVar(&httpAddr, "http-addr", "localhost:8001", "HTTP listen address for join requests")
	flag.Uint64Var(&nodeID, "node-id", 0, "Node ID (must be > 0)")
	flag.StringVar(&dataDir, "data-dir", "data/", "Data directory")
	flag.StringVar(&peers, "peers", "", "Comma-separated id=raft-addr pairs forming the founding membership, e.g. 1=localhost:7001,2=localhost:7002")
	flag.BoolVar(&join, "join", false, "Join an already-bootstrapped group instead of founding one")
}

func main() {
	flag.Parse()

	if nodeID == 0 {
		log.Fatalf("node-id is required and must be > 0")
	}

	dataDir = filepath.Join(dataDir, strconv.FormatUint(nodeID, 10))
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		log.Fatalf("failed to create data dir: %v", err)
	}

	f := fsm.NewFSM()

	initialMembers, err := parsePeers(peers)
	if err != nil {
		log.Fatalf("invalid -peers: %v", err)
	}

	raftNode, err := pdRaft.NewNode(&pdRaft.Config{
		NodeID:         nodeID,
		RaftAddr:       raftAddr,
		DataDir:        dataDir,
		Join:           join,
		InitialMembers: initialMembers,
	}, f)
	if err != nil {
		log.Fatalf("failed to start raft node: %v", err)
	}

	// Once we become leader of a freshly founded group, register ourselves
	// as a peer in the FSM so other components can discover our API address.
	if !join {
		go func() {
			for i := 0; i < 30; i++ {
				time.Sleep(1 * time.Second)
				if raftNode.IsLeader() {
					if err := registerPeer(raftNode, nodeID, raftAddr, httpAddr); err != nil {
						log.Printf("failed to register self as peer: %v", err)
					}
					return
				}
			}
		}()
	}

	grpcServer := server.NewServer(raftNode, f)

	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", grpcAddr, err)
	}
	s := grpc.NewServer()
	pb.RegisterPlacementServiceServer(s, grpcServer)
	ccepb.RegisterRoutingServiceServer(s, server.NewRoutingServer(f))
	go func() {
		log.Printf("gRPC server listening at %v", lis.Addr())
		if err := s.Serve(lis); err != nil {
			log.Fatalf("failed to serve gRPC: %v", err)
		}
	}()

	// The HTTP /join endpoint lets an operator ask the current leader to
	// admit a new voter into the Raft group before starting it with -join.
	http.HandleFunc("/join", func(w http.ResponseWriter, r *http.Request) {
		m := make(map[string]string)
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		remoteRaftAddr := m["addr"]
		remoteNodeID, err := strconv.ParseUint(m["id"], 10, 64)
		if err != nil {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}
		remoteAPIAddr := m["api_addr"]

		if !raftNode.IsLeader() {
			http.Error(w, "not leader", http.StatusServiceUnavailable)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		if err := raftNode.AddVoter(ctx, remoteNodeID, remoteRaftAddr); err != nil {
			log.Printf("failed to add voter: %v", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		log.Printf("added voter %d at %s", remoteNodeID, remoteRaftAddr)

		if err := registerPeer(raftNode, remoteNodeID, remoteRaftAddr, remoteAPIAddr); err != nil {
			log.Printf("failed to register peer %d: %v", remoteNodeID, err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})

	go func() {
		log.Printf("HTTP server listening on %s", httpAddr)
		if err := http.ListenAndServe(httpAddr, nil); err != nil {
			log.Fatalf("failed to start HTTP server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	s.GracefulStop()
	raftNode.Shutdown()
	log.Println("server stopped")
}

func parsePeers(s string) (map[uint64]string, error) {
	result := make(map[uint64]string)
	if s == "" {
		return result, nil
	}
	for _, pair := range strings.Split(s, ",") {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed peer entry %q", pair)
		}
		id, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed peer id in %q: %w", pair, err)
		}
		result[id] = parts[1]
	}
	return result, nil
}

func registerPeer(raftNode *pdRaft.Node, nodeID uint64, raftAddr, apiAddr string) error {
	payload := fsm.RegisterPeerPayload{
		ID:       strconv.FormatUint(nodeID, 10),
		RaftAddr: raftAddr,
		APIAddr:  apiAddr,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal register peer payload: %w", err)
	}
	cmd := fsm.Command{
		Type:    fsm.RegisterPeer,
		Payload: payloadBytes,
	}
	cmdBytes, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal register peer command: %w", err)
	}

	if _, err := raftNode.Propose(cmdBytes, 5*time.Second); err != nil {
		return fmt.Errorf("failed to propose register peer command: %w", err)
	}
	log.Printf("registered peer %d with api address %s", nodeID, apiAddr)
	return nil
}
