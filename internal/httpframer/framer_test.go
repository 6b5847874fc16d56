package httpframer

import "testing"

func feedAll(t *testing.T, f *Framer, raw []byte, chunkSize int) []byte {
	t.Helper()
	var got []byte
	for len(raw) > 0 {
		n := chunkSize
		if n <= 0 || n > len(raw) {
			n = len(raw)
		}
		if err := f.Feed(raw[:n], func(b []byte) { got = append(got, b...) }); err != nil {
			t.Fatalf("Feed: %v", err)
		}
		raw = raw[n:]
	}
	return got
}

func TestIdentityBody(t *testing.T) {
	raw := []byte("HTTP/1.1 200 OK\r\nContent-Length: 16\r\n\r\n{\"id\":1,\"n\":\"a\"}")
	f := New()
	got := feedAll(t, f, raw, 0)
	if string(got) != `{"id":1,"n":"a"}` {
		t.Fatalf("got %q", got)
	}
	if !f.Done() {
		t.Fatal("expected Done")
	}
	if cl, ok := f.ContentLength(); !ok || cl != 16 {
		t.Fatalf("content length = %d, %v", cl, ok)
	}
}

func TestChunkedBoundaryStress(t *testing.T) {
	raw := []byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n4\r\n{\"a\"\r\n6\r\n:true}\r\n0\r\n\r\n")
	for _, sz := range []int{0, 1, 2, 3, 7} {
		f := New()
		got := feedAll(t, f, raw, sz)
		if string(got) != `{"a":true}` {
			t.Fatalf("chunkSize=%d: got %q", sz, got)
		}
		if !f.Done() {
			t.Fatalf("chunkSize=%d: expected Done", sz)
		}
		if !f.Chunked() {
			t.Fatalf("chunkSize=%d: expected Chunked() true", sz)
		}
	}
}

func TestHeadersTooLarge(t *testing.T) {
	f := New()
	raw := make([]byte, 0, maxHeaderBytes+100)
	raw = append(raw, []byte("HTTP/1.1 200 OK\r\n")...)
	for len(raw) < maxHeaderBytes+50 {
		raw = append(raw, []byte("X-Pad: aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa\r\n")...)
	}
	err := f.Feed(raw, func([]byte) {})
	if err == nil {
		t.Fatal("expected oversize header error")
	}
}

func TestMalformedChunkSize(t *testing.T) {
	f := New()
	raw := []byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\nZZZ\r\nbody\r\n")
	if err := f.Feed(raw, func([]byte) {}); err == nil {
		t.Fatal("expected malformed chunk size error")
	}
}

func TestNoLengthHeaderReadsToClose(t *testing.T) {
	f := New()
	raw := []byte("HTTP/1.1 200 OK\r\n\r\nhello world")
	got := feedAll(t, f, raw, 0)
	if string(got) != "hello world" {
		t.Fatalf("got %q", got)
	}
	if f.Done() {
		t.Fatal("identity-to-close body should not reach Done from Feed alone")
	}
}
