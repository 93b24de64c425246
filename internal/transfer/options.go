package transfer

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Pablu23/Utftp/internal/common"
)

type Options struct {
	// Timeout is how long the sender waits for an Ack before resending.
	Timeout     time.Duration
	MaxAttempts int
	// ReadTimeout bounds each receive of the receiver, 0 blocks forever.
	ReadTimeout time.Duration
	Logger      *log.Entry
}

func NewDefaultOptions() *Options {
	return &Options{
		Timeout:     common.AckTimeout,
		MaxAttempts: common.MaxResendAttempts,
		ReadTimeout: 0,
		Logger:      log.NewEntry(log.StandardLogger()),
	}
}

func applyOptions(opts []func(*Options)) *Options {
	options := NewDefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.Logger == nil {
		options.Logger = log.NewEntry(log.StandardLogger())
	}
	return options
}
