package icapclient

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/phayes/freeport"
)

func TestDefaultConnectionManagerOpen(t *testing.T) {
	port, err := freeport.GetFreePort()
	if err != nil {
		t.Fatal(err)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	manager := NewDefaultConnectionManager()
	svc := ServiceInformation{Host: "127.0.0.1", Port: port}

	transport, err := manager.Open(context.Background(), svc, ICAPConnConfig{ConnectTimeout: 2 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	defer transport.Close()

	select {
	case serverConn := <-accepted:
		defer serverConn.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("server never observed an incoming connection")
	}

	if _, err := transport.WriteString("OPTIONS icap://127.0.0.1/echo ICAP/1.0\r\n\r\n"); err != nil {
		t.Fatal(err)
	}
	if err := transport.Flush(); err != nil {
		t.Fatal(err)
	}
}

func TestDefaultConnectionManagerOpenRefused(t *testing.T) {
	port, err := freeport.GetFreePort()
	if err != nil {
		t.Fatal(err)
	}

	manager := NewDefaultConnectionManager()
	svc := ServiceInformation{Host: "127.0.0.1", Port: port}

	_, err = manager.Open(context.Background(), svc, ICAPConnConfig{ConnectTimeout: 500 * time.Millisecond})
	if err == nil {
		t.Fatal("expected a dial error against a port nothing is listening on")
	}
}
