package main

import (
	"fmt"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"

	"github.com/Pablu23/Utftp/internal/client"
	"github.com/Pablu23/Utftp/internal/server"
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: utftp server")
	fmt.Fprintln(os.Stderr, "       utftp client <servername> <filename>")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	if lvl, err := log.ParseLevel(os.Getenv("UTFTP_LOG_LEVEL")); err == nil {
		log.SetLevel(lvl)
	}

	switch os.Args[1] {
	case "server":
		server, err := server.New()
		if err != nil {
			log.WithError(err).Fatal("Could not create server")
		}

		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt)
		go func() {
			<-c
			log.Info("Server is shutting down")
			server.Close()
		}()

		if err := server.ListenAndServe(); err != nil {
			log.WithError(err).Fatal("Could not start listening")
		}
	case "client":
		if len(os.Args) != 4 {
			usage()
		}
		stats, err := client.GetFile(os.Args[2], os.Args[3])
		if err != nil {
			log.WithError(err).Fatal("Transfer failed")
		}
		log.WithFields(log.Fields{
			"Bytes":  stats.Bytes,
			"Digest": stats.Digest(),
		}).Info("File received")
	default:
		usage()
	}
}
