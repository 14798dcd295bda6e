package netio

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestNewThrottledConn_BypassWhenDisabled(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer conn.Close()

	wrapped := NewThrottledConn(context.Background(), conn, 0)
	if wrapped != net.PacketConn(conn) {
		t.Errorf("expected bypass to return the original conn unwrapped")
	}
}

func TestThrottledConn_LimitsThroughput(t *testing.T) {
	server, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket server: %v", err)
	}
	defer server.Close()

	client, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket client: %v", err)
	}
	defer client.Close()

	throttled := NewThrottledConn(context.Background(), client, 1024)

	payload := make([]byte, 4096)
	start := time.Now()
	if _, err := throttled.WriteTo(payload, server.LocalAddr()); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	elapsed := time.Since(start)

	// 4096 bytes at 1024 B/s with a 1024-byte burst cap should take a
	// couple of seconds to drain the token bucket, not be instantaneous.
	if elapsed < 500*time.Millisecond {
		t.Errorf("expected throttling to introduce measurable delay, took %s", elapsed)
	}
}
