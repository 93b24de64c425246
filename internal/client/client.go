package client

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Pablu23/Utftp/internal/common"
	"github.com/Pablu23/Utftp/internal/transfer"
)

type Options struct {
	// Port is used when the host passed to GetFile carries none.
	Port   int
	OutDir string
	// ReadTimeout bounds each wait for the next packet, 0 waits forever.
	ReadTimeout time.Duration
}

func NewDefaultOptions() *Options {
	return &Options{
		Port:        common.ServerPort,
		OutDir:      ".",
		ReadTimeout: 0,
	}
}

// GetFile requests path from the server at host and writes it to a file of
// the same name in OutDir. Blocks go to a temporary file that is renamed
// into place on success and removed on failure.
func GetFile(host string, path string, opts ...func(*Options)) (*transfer.Stats, error) {
	options := NewDefaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	udpAddr, err := net.ResolveUDPAddr("udp", serverAddress(host, options.Port))
	if err != nil {
		return nil, err
	}

	// Not dialed: the server answers from its transfer port.
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	logger := log.WithFields(log.Fields{
		"Server": udpAddr.String(),
		"File":   path,
	})

	name := filepath.Base(strings.TrimSpace(path))
	outPath := filepath.Join(options.OutDir, name)
	// An existing local copy is only replaced once the transfer succeeds.
	file, err := os.CreateTemp(options.OutDir, "."+name+".*.part")
	if err != nil {
		return nil, err
	}
	tmpPath := file.Name()
	if err := file.Chmod(0o644); err != nil {
		logger.WithError(err).Warn("Could not set File mode")
	}

	if _, err := conn.WriteToUDP(common.NewRequest(path).ToBytes(), udpAddr); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("send request: %w", err)
	}
	logger.Info("Requested File")

	receiver := transfer.NewReceiver(conn, file, func(o *transfer.Options) {
		o.ReadTimeout = options.ReadTimeout
		o.Logger = logger
	})
	err = receiver.Run()

	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpPath, outPath)
	}
	if err != nil {
		if rmErr := os.Remove(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.WithError(rmErr).Warn("Could not remove partial File")
		}
		return receiver.Stats, err
	}

	return receiver.Stats, nil
}

func serverAddress(host string, port int) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
