// Command oscdump listens on a UDP port and prints every decoded OSC
// message it receives, the Go counterpart of the print_datagrams sample
// distributed with this protocol's reference client libraries.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/klingtnet/goosc/internal/config"
	"github.com/klingtnet/goosc/osc"
	"github.com/klingtnet/goosc/transport"
)

var cfg = config.Default()

var rootCmd = &cobra.Command{
	Use:   "oscdump",
	Short: "print decoded OSC messages received over UDP",
}

var dumpCmd = &cobra.Command{
	Use:   "print-datagrams",
	Short: "listen on ip:port and print every received message",
	Run: func(cmd *cobra.Command, args []string) {
		if err := cfg.Validate(); err != nil {
			log.Fatal(err)
		}
		if cfg.Verbose {
			log.SetLevel(log.DebugLevel)
		}
		if err := dump(); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	dumpCmd.Flags().StringVar(&cfg.IP, "ip", cfg.IP, "the ip to listen on")
	dumpCmd.Flags().IntVar(&cfg.Port, "port", cfg.Port, "the port to listen on")
	dumpCmd.Flags().BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "enable debug logging")
	rootCmd.AddCommand(dumpCmd)
}

func printHandler(peer net.Addr, address string, fixedArgs, args []interface{}) *osc.Reply {
	log.Infof("%s %v", address, args)
	return nil
}

func dump() error {
	dispatcher := osc.NewDispatcher()
	dispatcher.OnHandlerError = func(address string, err error) {
		log.WithField("address", address).Warn(err)
	}
	dispatcher.SetDefaultHandler(printHandler)

	addr := net.JoinHostPort(cfg.IP, strconv.Itoa(cfg.Port))
	server, err := transport.ListenUDP(addr, transport.BufSizeLarge, dispatcher, transport.Blocking)
	if err != nil {
		return err
	}
	defer server.Close()

	log.Infof("listening for UDP packets on %s ...", addr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := server.Serve(ctx); err != nil {
		return err
	}
	return nil
}

func main() {
	log.SetLevel(log.InfoLevel)
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
