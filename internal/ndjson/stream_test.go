package ndjson

import (
	"bufio"
	"io"
	"testing"

	"github.com/sausheong/webtab/internal/queue"
)

func TestStreamLineFraming(t *testing.T) {
	q := queue.New()
	q.Push([]byte(`{"id":1}`))
	q.Push([]byte(`{"id":2}`))
	q.Close()

	s := New(q)
	r := bufio.NewReader(s)

	line1, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read line 1: %v", err)
	}
	if line1 != "{\"id\":1}\n" {
		t.Fatalf("line 1 = %q", line1)
	}

	line2, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		t.Fatalf("read line 2: %v", err)
	}
	if line2 != "{\"id\":2}" && line2 != "{\"id\":2}\n" {
		t.Fatalf("line 2 = %q", line2)
	}

	if _, err := r.ReadByte(); err != io.EOF {
		t.Fatalf("expected EOF after draining, got %v", err)
	}
}

func TestStreamSplitAcrossReads(t *testing.T) {
	q := queue.New()
	q.Push([]byte("ab"))
	q.Push([]byte("cd"))
	q.Close()

	s := New(q)
	buf := make([]byte, 1)
	var got []byte
	for {
		n, err := s.Read(buf)
		got = append(got, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	if string(got) != "ab\ncd\n" {
		t.Fatalf("got %q", got)
	}
}
