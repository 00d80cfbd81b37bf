package session

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/posecast/internal/pose"
	"github.com/danmuck/posecast/internal/testutil/testlog"
	"github.com/gorilla/websocket"
)

func TestWebSocketConnCarriesHandshakeAndFrames(t *testing.T) {
	testlog.Start(t)
	upgrader := websocket.Upgrader{}
	got := make(chan Replication, 1)
	errs := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errs <- err
			return
		}
		conn := NewWebSocketConn(ws)
		defer conn.Close()
		reader := bufio.NewReader(conn)
		if _, err := ReadJoin(reader); err != nil {
			errs <- err
			return
		}
		fr, err := ReadFrame(reader)
		if err != nil {
			errs <- err
			return
		}
		rep, err := DecodeReplicationFrame(fr)
		if err != nil {
			errs <- err
			return
		}
		got <- rep
	}))
	defer srv.Close()

	addr := "ws" + strings.TrimPrefix(srv.URL, "http") + WebSocketPath
	if !IsWebSocketAddress(addr) {
		t.Fatalf("expected websocket address: %s", addr)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, err := DialWebSocket(ctx, addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	actor := pose.NewActorID()
	if err := WriteJoin(conn, Join{PeerID: "peer.ws", ActorID: actor}); err != nil {
		t.Fatalf("write join: %v", err)
	}
	b, err := EncodeReplicationFrame(1, 0, Replication{
		Actor: actor,
		Pose:  &PoseState{ID: pose.MustIdentifier("core:wave"), Progress: 2, Length: 10},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// split across two messages to prove the stream reassembles
	if _, err := conn.Write(b[:10]); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := conn.Write(b[10:]); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case rep := <-got:
		if rep.Actor != actor || rep.Pose == nil || rep.Pose.ID.Path != "wave" {
			t.Fatalf("unexpected replication: %+v", rep)
		}
	case err := <-errs:
		t.Fatalf("server: %v", err)
	case <-ctx.Done():
		t.Fatalf("timeout waiting for replication")
	}
}

func TestWebSocketConnDeadlinesAcrossGoroutines(t *testing.T) {
	testlog.Start(t)
	const frames = 200
	upgrader := websocket.Upgrader{}
	errs := make(chan error, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errs <- err
			return
		}
		conn := NewWebSocketConn(ws)
		defer conn.Close()

		// one goroutine keeps moving deadlines while another writes
		stop := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
				_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
			}
		}()
		actor := pose.NewActorID()
		for i := 1; i <= frames; i++ {
			_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
			b, err := EncodeReplicationFrame(uint64(i), 0, Replication{
				Actor: actor,
				Pose:  &PoseState{ID: pose.MustIdentifier("core:wave"), Progress: uint64(i), Length: frames},
			})
			if err == nil {
				_, err = conn.Write(b)
			}
			if err != nil {
				close(stop)
				wg.Wait()
				errs <- err
				return
			}
		}
		close(stop)
		wg.Wait()
		// hold the connection until the client has drained every frame
		_, _ = conn.Read(make([]byte, 1))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := DialWebSocket(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+WebSocketPath, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	reader := bufio.NewReader(conn)
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for i := 1; i <= frames; i++ {
		fr, err := ReadFrame(reader)
		if err != nil {
			select {
			case serr := <-errs:
				t.Fatalf("server: %v", serr)
			default:
			}
			t.Fatalf("read frame %d: %v", i, err)
		}
		rep, err := DecodeReplicationFrame(fr)
		if err != nil {
			t.Fatalf("decode frame %d: %v", i, err)
		}
		if rep.Pose == nil || rep.Pose.Progress != uint64(i) {
			t.Fatalf("frame %d out of order: %+v", i, rep.Pose)
		}
	}
}
