package server

import (
	"time"

	"github.com/Pablu23/Utftp/internal/common"
)

type Options struct {
	Address  string
	Port     int
	Datapath string
	// AckTimeout and MaxResendAttempts drive retransmission of every transfer.
	AckTimeout        time.Duration
	MaxResendAttempts int
	// MaxTransfers bounds concurrent transfers, 0 means unbounded.
	MaxTransfers int
}

func NewDefaultOptions() *Options {
	return &Options{
		Address:           "0.0.0.0",
		Port:              common.ServerPort,
		Datapath:          ".",
		AckTimeout:        common.AckTimeout,
		MaxResendAttempts: common.MaxResendAttempts,
		MaxTransfers:      0,
	}
}
