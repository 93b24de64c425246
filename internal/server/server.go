package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Pablu23/Utftp/internal/common"
	"github.com/Pablu23/Utftp/internal/transfer"
)

var (
	ErrOutOfPath  = errors.New("requested file out of path")
	ErrNotRegular = errors.New("not a regular file")
)

type Server struct {
	options        *Options
	parentFilePath string
	slots          chan struct{}

	mu      sync.Mutex
	conn    *net.UDPConn
	stopped chan struct{}
	wg      sync.WaitGroup
}

func New(opts ...func(*Options)) (*Server, error) {
	options := NewDefaultOptions()

	for _, opt := range opts {
		opt(options)
	}

	parentFilePath, err := filepath.Abs(options.Datapath)
	if err != nil {
		return nil, err
	}

	server := &Server{
		options:        options,
		parentFilePath: parentFilePath,
	}
	if options.MaxTransfers > 0 {
		server.slots = make(chan struct{}, options.MaxTransfers)
	}

	log.SetFormatter(&log.TextFormatter{
		ForceColors: true,
	})

	return server, nil
}

// ListenAndServe binds the well-known port and serves requests until Close.
func (server *Server) ListenAndServe() error {
	address := net.JoinHostPort(server.options.Address, strconv.Itoa(server.options.Port))
	udpAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return fmt.Errorf("resolve %v: %w", address, err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("listen on %v: %w", address, err)
	}

	return server.Serve(conn)
}

// Serve reads requests from conn and starts one transfer goroutine per
// read request. conn is only read here and is never used for data. Serve
// returns nil once conn is closed.
func (server *Server) Serve(conn *net.UDPConn) error {
	stopped := make(chan struct{})
	defer close(stopped)

	server.mu.Lock()
	server.conn = conn
	server.stopped = stopped
	server.mu.Unlock()

	log.Infof("Starting server on %v", conn.LocalAddr())

	var delay time.Duration
	for {
		var buf [common.RequestBufferSize]byte
		r, addr, err := conn.ReadFromUDP(buf[:])
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				log.Info("Server stopped listening")
				return nil
			}
			delay = retryDelay(delay)
			log.WithError(err).WithField("Retry In", delay).Error("Could not retrieve UDP Packet")
			time.Sleep(delay)
			continue
		}
		delay = 0

		pck, err := common.PacketFromBytes(buf[:r])
		if err != nil {
			log.WithError(err).WithField("From", addr.String()).Warn("Received invalid Packet")
			continue
		}

		path, err := pck.GetFilePath()
		if err != nil {
			log.WithFields(log.Fields{
				"From":        addr.String(),
				"Packet Type": pck.Opcode,
			}).Warn("Unexpected Packet Type")
			continue
		}

		server.wg.Add(1)
		go server.handleRequest(addr, path)
	}
}

// Close stops listening and waits for running transfers to end.
func (server *Server) Close() error {
	server.mu.Lock()
	conn, stopped := server.conn, server.stopped
	server.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	<-stopped
	server.wg.Wait()
	return err
}

const maxRetryDelay = time.Second

// retryDelay doubles the pause after each failed read, from 5ms up to maxRetryDelay.
func retryDelay(prev time.Duration) time.Duration {
	if prev == 0 {
		return 5 * time.Millisecond
	}
	if prev*2 > maxRetryDelay {
		return maxRetryDelay
	}
	return prev * 2
}

func (server *Server) handleRequest(addr *net.UDPAddr, path string) {
	defer server.wg.Done()

	logger := log.WithFields(log.Fields{
		"Peer": addr.String(),
		"File": path,
	})

	// Queued requests hold no file until a slot frees up.
	if server.slots != nil {
		server.slots <- struct{}{}
		defer func() { <-server.slots }()
	}

	file, err := server.openFile(path)
	if err != nil {
		logger.WithError(err).Warn("File not found")
		server.sendError(addr, common.MsgFileNotFound)
		return
	}
	defer func(file *os.File) {
		err := file.Close()
		if err != nil {
			logger.WithError(err).Error("Could not close File")
		}
	}(file)

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(server.options.Address)})
	if err != nil {
		logger.WithError(err).Error("Could not open transfer port")
		return
	}
	defer func(conn *net.UDPConn) {
		err := conn.Close()
		if err != nil {
			logger.WithError(err).Error("Could not close transfer port")
		}
	}(conn)

	logger = logger.WithField("Transfer Port", conn.LocalAddr().(*net.UDPAddr).Port)
	logger.Info("Started Session")

	sender := transfer.NewSender(conn, addr, file, func(o *transfer.Options) {
		o.Timeout = server.options.AckTimeout
		o.MaxAttempts = server.options.MaxResendAttempts
		o.Logger = logger
	})
	if err := sender.Run(); err != nil {
		logger.WithError(err).Error("Transfer aborted")
		return
	}

	logger.Info("Closing Session")
}

// openFile resolves path below the data directory and opens it. Paths that
// leave the data directory are refused.
func (server *Server) openFile(path string) (*os.File, error) {
	file := filepath.Join(server.parentFilePath, strings.TrimSpace(path))
	file = filepath.Clean(file)

	rel, err := filepath.Rel(server.parentFilePath, file)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		log.WithFields(log.Fields{
			"ParentFilePath":    server.parentFilePath,
			"RequestedFilePath": path,
			"CleanedFilePath":   file,
		}).Warn("Requesting File out of Path")
		return nil, ErrOutOfPath
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil || !fi.Mode().IsRegular() {
		f.Close()
		if err == nil {
			err = ErrNotRegular
		}
		return nil, err
	}
	return f, nil
}

// sendError answers from a short-lived port, the listening port is never
// written to.
func (server *Server) sendError(addr *net.UDPAddr, msg string) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(server.options.Address)})
	if err != nil {
		log.WithError(err).Error("Could not open port for Error packet")
		return
	}
	defer conn.Close()

	if _, err := conn.WriteToUDP(common.NewError(msg).ToBytes(), addr); err != nil {
		log.WithError(err).WithField("Peer", addr.String()).Error("Could not write Packet to UDP")
	}
}
