package fetch

import (
	"bufio"
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// serveOnce accepts a single connection, discards the request line and
// headers, then writes raw bytes verbatim as the response.
func serveOnce(t *testing.T, raw []byte) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		defer ln.Close()

		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil || line == "\r\n" {
				break
			}
		}
		conn.Write(raw)
	}()
	return ln.Addr().String()
}

func TestWorkerIdentityBodySingleRow(t *testing.T) {
	addr := serveOnce(t, []byte("HTTP/1.1 200 OK\r\nContent-Length: 16\r\n\r\n{\"id\":1,\"n\":\"a\"}"))

	w, err := Start(context.Background(), Request{
		URL:            "http://" + addr + "/",
		ConnectTimeout: 2 * time.Second,
		ReadTimeout:    2 * time.Second,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	buf := make([]byte, 4096)
	var got []byte
	for {
		n, err := w.Stream().Read(buf)
		got = append(got, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	w.Wait()
	if err := w.Err(); err != nil {
		t.Fatalf("worker error: %v", err)
	}
	if string(got) != "{\"id\":1,\"n\":\"a\"}\n" {
		t.Fatalf("got %q", got)
	}
}

func TestWorkerPathFilterFanOut(t *testing.T) {
	body := `{"data":[{"x":1},{"x":2},{"x":3}]}`
	addr := serveOnce(t, buildResponse(body))

	w, err := Start(context.Background(), Request{
		URL:            "http://" + addr + "/",
		PathFilter:     []string{"data"},
		ConnectTimeout: 2 * time.Second,
		ReadTimeout:    2 * time.Second,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	r := bufio.NewReader(w.Stream())
	var lines []string
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			lines = append(lines, line[:len(line)-1])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	w.Wait()
	if err := w.Err(); err != nil {
		t.Fatalf("worker error: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 rows, got %d: %v", len(lines), lines)
	}
}

func TestWorkerRejectsUnsupportedScheme(t *testing.T) {
	_, err := Start(context.Background(), Request{URL: "ftp://example.com/x"}, zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestWorkerIDIsUniquePerFetch(t *testing.T) {
	addr := serveOnce(t, []byte("HTTP/1.1 200 OK\r\nContent-Length: 8\r\n\r\n{\"a\":1}\n"))
	w1, err := Start(context.Background(), Request{URL: "http://" + addr + "/", ConnectTimeout: 2 * time.Second, ReadTimeout: 2 * time.Second}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	io.Copy(io.Discard, w1.Stream())
	w1.Wait()

	addr2 := serveOnce(t, []byte("HTTP/1.1 200 OK\r\nContent-Length: 8\r\n\r\n{\"a\":1}\n"))
	w2, err := Start(context.Background(), Request{URL: "http://" + addr2 + "/", ConnectTimeout: 2 * time.Second, ReadTimeout: 2 * time.Second}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	io.Copy(io.Discard, w2.Stream())
	w2.Wait()

	if w1.ID() == "" || w2.ID() == "" {
		t.Fatal("expected non-empty fetch IDs")
	}
	if w1.ID() == w2.ID() {
		t.Fatalf("expected distinct fetch IDs, got %q twice", w1.ID())
	}
}

func buildResponse(body string) []byte {
	head := "HTTP/1.1 200 OK\r\nContent-Length: "
	return []byte(head + strconv.Itoa(len(body)) + "\r\n\r\n" + body)
}
