package main

import (
	"context"
	"io"
	"net"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/chanduplex/muxstream/pkg/logging"
	"github.com/chanduplex/muxstream/pkg/mux"
)

func dialMain(command *cobra.Command, arguments []string) error {
	if dialConfiguration.address == "" {
		return errors.New("no dial address specified (use --address)")
	}
	if dialConfiguration.name == "" {
		return errors.New("no channel name specified (use --name)")
	}

	if _, err := loadConfiguration(); err != nil {
		return err
	}

	connection, err := net.Dial("tcp", dialConfiguration.address)
	if err != nil {
		return errors.Wrap(err, "unable to connect")
	}
	defer connection.Close()

	carrier := mux.NewCarrierFromStream(connection)
	session, err := mux.NewSession(context.Background(), carrier, &mux.SessionOptions{Logger: logging.RootLogger})
	if err != nil {
		return errors.Wrap(err, "handshake failed")
	}
	defer session.Close()

	channel, err := session.OfferChannel(context.Background(), dialConfiguration.name, nil)
	if err != nil {
		return errors.Wrapf(err, "unable to offer channel %q", dialConfiguration.name)
	}
	defer channel.Close()

	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(os.Stdout, channel)
		done <- err
	}()

	if _, err := io.Copy(channel, os.Stdin); err != nil {
		return errors.Wrap(err, "unable to write to channel")
	}
	if err := channel.CloseWrite(); err != nil {
		return errors.Wrap(err, "unable to half-close channel")
	}

	if err := <-done; err != nil && err != io.EOF {
		return errors.Wrap(err, "unable to read from channel")
	}
	return nil
}

var dialCommand = &cobra.Command{
	Use:   "dial",
	Short: "Connects to a muxctl serve instance and offers a single named channel",
	Run:   mainify(dialMain),
}

var dialConfiguration struct {
	address string
	name    string
}

func init() {
	flags := dialCommand.Flags()
	flags.StringVarP(&dialConfiguration.address, "address", "a", "", "TCP address to connect to")
	flags.StringVarP(&dialConfiguration.name, "name", "n", "", "Channel name to offer")
}
