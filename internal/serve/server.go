// Package serve exposes a single packed artifact over a throwaway local HTTP
// endpoint.
package serve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/wyattjoh/next-dev-utils/internal/utils/logger"
)

// DigestParam is the query parameter a client echoes back to prove it was
// given the current URL.
const DigestParam = "md5"

// Server serves exactly one file at /<filename>.
type Server struct {
	path     string
	filename string
	digest   string

	listener   net.Listener
	httpServer *http.Server
	done       chan struct{}
	closeOnce  sync.Once
	closeErr   error
}

// Start binds 127.0.0.1 on an OS-assigned port and serves path. It returns
// once the listener is bound. The server stops when ctx is cancelled or
// Close is called.
func Start(ctx context.Context, path, filename, digest string) (*Server, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("artifact to serve: %w", err)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listening for artifact server: %w", err)
	}

	s := &Server{
		path:     path,
		filename: filename,
		digest:   digest,
		listener: ln,
		done:     make(chan struct{}),
	}
	s.httpServer = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		defer close(s.done)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger().Errorf("Artifact server stopped: %v", err)
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()

	logger.Logger().Debugf("Serving %s on %s", filename, ln.Addr())
	return s, nil
}

// Port is the bound TCP port.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// URL is the address clients use to download the artifact.
func (s *Server) URL() string {
	q := url.Values{}
	q.Set(DigestParam, s.digest)
	u := url.URL{
		Scheme:   "http",
		Host:     s.listener.Addr().String(),
		Path:     "/" + s.filename,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Done is closed once the server has stopped serving.
func (s *Server) Done() <-chan struct{} { return s.done }

// Close stops the server and releases the port. Safe to call repeatedly.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.httpServer.Close()
	})
	return s.closeErr
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.Logger()

	if r.URL.Path != "/"+s.filename {
		log.Debugf("Artifact server: 404 %s", r.URL.Path)
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Query().Get(DigestParam) != s.digest {
		log.Warnf("Artifact server: digest mismatch for %s", s.filename)
		http.Error(w, "digest mismatch", http.StatusBadRequest)
		return
	}

	f, err := os.Open(s.path)
	if err != nil {
		http.Error(w, "artifact unavailable", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if info, err := f.Stat(); err == nil {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, f); err != nil {
		log.Debugf("Artifact server: copy interrupted: %v", err)
	}
	log.Infof("Served %s to %s", s.filename, r.RemoteAddr)
}
