package main

import (
	"context"
	"io"
	"net"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/chanduplex/muxstream/internal/config"
	"github.com/chanduplex/muxstream/pkg/logging"
	"github.com/chanduplex/muxstream/pkg/mux"
)

func serveMain(command *cobra.Command, arguments []string) error {
	cfg, err := loadConfiguration()
	if err != nil {
		return err
	}

	address := serveConfiguration.listenAddress
	if address == "" {
		address = cfg.ListenAddress
	}
	if address == "" {
		return errors.New("no listen address specified (use --listen or a configuration file)")
	}

	for _, name := range serveConfiguration.accept {
		cfg.Accepters = append(cfg.Accepters, config.Accepter{Name: name})
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "unable to listen")
	}
	defer listener.Close()

	logging.RootLogger.Printf("listening on %s", listener.Addr())

	for {
		connection, err := listener.Accept()
		if err != nil {
			return errors.Wrap(err, "unable to accept connection")
		}
		go serveConnection(connection, cfg)
	}
}

// serveConnection establishes a Session atop a single accepted connection,
// pre-registers the configured named accepters, and logs every unmatched
// (anonymous) offer that arrives.
func serveConnection(connection net.Conn, cfg *config.Config) {
	id := uuid.New().String()
	logger := logging.RootLogger.Sublogger(id)

	carrier := mux.NewCarrierFromStream(connection)
	session, err := mux.NewSession(context.Background(), carrier, &mux.SessionOptions{Logger: logger})
	if err != nil {
		logger.Error(errors.Wrap(err, "handshake failed"))
		connection.Close()
		return
	}
	logger.Printf("session established with %s", connection.RemoteAddr())

	session.OnChannelOffered(func(event mux.ChannelOfferedEvent) error {
		if event.Name == "" {
			logger.Printf("anonymous channel %d offered", event.ID)
		}
		return nil
	})

	for _, accepter := range cfg.Accepters {
		go acceptLoop(session, logger, accepter)
	}

	<-session.Completion()
	if err := session.Err(); err != nil {
		logger.Warn(errors.Wrap(err, "session ended"))
	} else {
		logger.Printf("session closed")
	}
}

// acceptLoop repeatedly accepts channels offered under accepter.Name,
// echoing each one's inbound bytes back to itself so that "muxctl dial" has
// something to observe end to end.
func acceptLoop(session *mux.Session, logger *logging.Logger, accepter config.Accepter) {
	options := mux.DefaultChannelOptions()
	if accepter.InboundQueueCapacity > 0 {
		options.InboundQueueCapacity = accepter.InboundQueueCapacity
	}
	for {
		channel, err := session.AcceptChannelByName(context.Background(), accepter.Name, options)
		if err != nil {
			if err == mux.ErrStreamClosed || errors.Cause(err) == mux.ErrStreamClosed {
				return
			}
			logger.Warn(errors.Wrapf(err, "accept %q failed", accepter.Name))
			return
		}
		go echoChannel(channel, logger)
	}
}

func echoChannel(channel *mux.Channel, logger *logging.Logger) {
	defer channel.Close()
	n, err := io.Copy(channel, channel)
	if err != nil && err != io.EOF {
		logger.Warn(errors.Wrap(err, "echo failed"))
		return
	}
	logger.Printf("channel %d: echoed %s", channel.ID(), humanize.Bytes(uint64(n)))
}

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Listens for incoming connections and serves multiplexed channels",
	Run:   mainify(serveMain),
}

var serveConfiguration struct {
	listenAddress string
	accept        []string
}

// registerFlags wires serve's flags into flags, typed explicitly against
// *pflag.FlagSet (rather than relying on the *cobra.Command wrapper) so that
// --accept can use pflag's repeatable StringArray type.
func registerFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&serveConfiguration.listenAddress, "listen", "l", "", "TCP address to listen on")
	flags.StringArrayVar(&serveConfiguration.accept, "accept", nil, "Pre-register a named accepter (may be repeated)")
}

func init() {
	registerFlags(serveCommand.Flags())
}
