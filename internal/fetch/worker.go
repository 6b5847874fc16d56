// Package fetch owns the one-connection-per-query HTTP client: dial,
// optional TLS handshake, request write, and a read loop that feeds
// decoded body bytes from internal/httpframer into internal/jsonpush.
// There is no connection pool and no retry — every query gets its own
// goroutine and its own socket, torn down when the query is done.
package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sausheong/webtab/internal/httpframer"
	"github.com/sausheong/webtab/internal/jsonpush"
	"github.com/sausheong/webtab/internal/metrics"
	"github.com/sausheong/webtab/internal/ndjson"
	"github.com/sausheong/webtab/internal/queue"
)

// Request describes the single HTTP call a Worker makes. A non-empty
// Body switches the method to POST; ExtraHeaders is a raw \r\n-joined
// block appended verbatim after the fixed headers.
type Request struct {
	Table          string
	URL            string
	Body           string
	ExtraHeaders   string
	PathFilter     []string
	UserAgent      string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Worker drives one fetch from dial through transcoding. Rows land on
// the ByteQueue behind Stream(); Err reports the first fatal error, if
// any, once the worker has finished.
type Worker struct {
	id     string
	queue  *queue.ByteQueue
	stream *ndjson.Stream

	mu   sync.Mutex
	err  error
	done chan struct{}
}

// ID returns the worker's request-scoped identifier, used to correlate
// log lines and error-ring entries from a single fetch across goroutines.
func (w *Worker) ID() string { return w.id }

// Start resolves req.URL, spawns the worker goroutine, and returns
// immediately. The caller reads rows from Stream() and should call
// Wait (or just drain the stream to EOF) before reading Err.
func Start(ctx context.Context, req Request, log zerolog.Logger) (*Worker, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch: parse url %q: %w", req.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("fetch: unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("fetch: url %q has no host", req.URL)
	}

	q := queue.New()
	w := &Worker{
		id:     uuid.NewString(),
		queue:  q,
		stream: ndjson.New(q),
		done:   make(chan struct{}),
	}

	go w.run(ctx, u, req, log.With().Str("fetch_id", w.id).Logger())
	return w, nil
}

// Stream returns the readable NDJSON view the cursor consumes.
func (w *Worker) Stream() *ndjson.Stream { return w.stream }

// QueueLen reports how many buffers are currently queued between the
// fetch goroutine and the cursor, for the queue-depth gauge.
func (w *Worker) QueueLen() int { return w.stream.QueueLen() }

// Wait blocks until the worker goroutine has exited.
func (w *Worker) Wait() { <-w.done }

// Err reports the first fatal error observed by the worker, if any.
// Safe to call concurrently with the worker still running, though the
// result is only final after Wait returns.
func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Worker) fail(err error) {
	w.mu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.mu.Unlock()
}

func (w *Worker) run(ctx context.Context, u *url.URL, req Request, log zerolog.Logger) {
	defer close(w.done)
	defer w.queue.Close()

	host := u.Hostname()
	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}

	dialer := &net.Dialer{Timeout: req.ConnectTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		w.fail(fmt.Errorf("fetch: dial %s: %w", u.Host, err))
		log.Error().Str("url", req.URL).Str("phase", "connect").Err(err).Msg("fetch failed")
		return
	}

	var conn net.Conn = raw
	defer func() { conn.Close() }()

	if u.Scheme == "https" {
		tlsConn := tls.Client(raw, &tls.Config{ServerName: host})
		hctx := ctx
		if req.ConnectTimeout > 0 {
			var cancel context.CancelFunc
			hctx, cancel = context.WithTimeout(ctx, req.ConnectTimeout)
			defer cancel()
		}
		if err := tlsConn.HandshakeContext(hctx); err != nil {
			w.fail(fmt.Errorf("fetch: tls handshake %s: %w", u.Host, err))
			log.Error().Str("url", req.URL).Str("phase", "tls").Err(err).Msg("fetch failed")
			return
		}
		conn = tlsConn
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	if err := writeRequest(conn, u, host, req); err != nil {
		w.fail(fmt.Errorf("fetch: write request: %w", err))
		log.Error().Str("url", req.URL).Str("phase", "request").Err(err).Msg("fetch failed")
		return
	}

	framer := httpframer.New()
	pr, pw := io.Pipe()

	// transcodeDone carries TranscodeStream's result. The goroutine closes
	// pr with that result as soon as it returns, whether it stopped because
	// the body ended, because a path filter only needed the first document,
	// or because it hit a fatal error partway through the declared body.
	// Without that close, a transcoder that exits early would leave nobody
	// reading pr, and every later pw.Write below would block forever.
	transcodeDone := make(chan error, 1)
	go func() {
		tc := jsonpush.New(w.queue)
		err := tc.TranscodeStream(pr, req.PathFilter)
		pr.CloseWithError(err)
		transcodeDone <- err
	}()

	buf := make([]byte, 4096)
	for {
		if req.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(req.ReadTimeout))
		}
		n, readErr := conn.Read(buf)
		if n > 0 {
			metrics.BytesReadTotal.WithLabelValues(req.Table).Add(float64(n))

			var writeErr error
			feedErr := framer.Feed(buf[:n], func(b []byte) {
				if writeErr != nil {
					return
				}
				if _, err := pw.Write(b); err != nil {
					writeErr = err
				}
			})
			if feedErr != nil {
				w.fail(fmt.Errorf("fetch: %w", feedErr))
				log.Error().Str("url", req.URL).Str("phase", "framing").Err(feedErr).Msg("fetch failed")
				pw.CloseWithError(feedErr)
				break
			}
			if writeErr != nil {
				// The transcoder has already stopped reading (it finished
				// or hit a fatal error); transcodeDone below carries the
				// authoritative result, so just stop feeding it more body.
				pw.Close()
				break
			}
		}
		if framer.Done() {
			pw.Close()
			break
		}
		if readErr != nil {
			if readErr == io.EOF && framer.Phase() == httpframer.PhaseIdentityBody {
				// Connection closed by the server. An identity body ends
				// when the connection closes.
				pw.Close()
			} else {
				if readErr == io.EOF {
					// Closed while headers or chunk framing were incomplete.
					readErr = io.ErrUnexpectedEOF
				}
				w.fail(fmt.Errorf("fetch: read: %w", readErr))
				log.Error().Str("url", req.URL).Str("phase", "body").Err(readErr).Msg("fetch failed")
				pw.CloseWithError(readErr)
			}
			break
		}
	}

	if tcErr := <-transcodeDone; tcErr != nil {
		w.fail(fmt.Errorf("fetch: %w", tcErr))
		log.Error().Str("url", req.URL).Str("phase", "json").Err(tcErr).Msg("fetch failed")
	}
}

func writeRequest(conn net.Conn, u *url.URL, host string, req Request) error {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	method := "GET"
	var body []byte
	if req.Body != "" {
		method = "POST"
		body = []byte(req.Body)
	}

	ua := req.UserAgent
	if ua == "" {
		ua = "webtab/1.0"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", method, path)
	fmt.Fprintf(&b, "Host: %s\r\n", hostHeader(u, host))
	fmt.Fprintf(&b, "User-Agent: %s\r\n", ua)
	b.WriteString("Accept: */*\r\n")
	b.WriteString("Connection: close\r\n")
	if extra := strings.TrimRight(req.ExtraHeaders, "\r\n"); extra != "" {
		b.WriteString(extra)
		b.WriteString("\r\n")
	}
	if len(body) > 0 {
		fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	}
	b.WriteString("\r\n")

	if _, err := io.WriteString(conn, b.String()); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := conn.Write(body); err != nil {
			return err
		}
	}
	return nil
}

func hostHeader(u *url.URL, host string) string {
	if u.Port() == "" {
		return host
	}
	return host + ":" + u.Port()
}
