// Command cartonrunner is the "noop" reference runner (§8 scenarios A and
// E): it connects back to the loader's bootstrap socket, attaches to the
// well-known Rpc and FileSystem channels, and serves doubled tensors.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/carton-ml/carton/comms"
	"github.com/carton-ml/carton/internal/noop"
	"github.com/carton-ml/carton/loader"
	"github.com/carton-ml/carton/mux"
	"github.com/carton-ml/carton/rpc"
	"github.com/carton-ml/carton/transport"
	"github.com/carton-ml/carton/vfsrpc"
)

func newRootCmd() *cobra.Command {
	var udsPath string

	cmd := &cobra.Command{
		Use:           "cartonrunner",
		Short:         "Reference Carton runner implementing the noop protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if udsPath == "" {
				return fmt.Errorf("cartonrunner: --uds-path is required")
			}
			return run(udsPath)
		},
	}
	cmd.Flags().StringVar(&udsPath, "uds-path", "", "path to the loader's bootstrap Unix domain socket")
	return cmd
}

func run(udsPath string) error {
	c, err := comms.Connect(udsPath)
	if err != nil {
		return fmt.Errorf("cartonrunner: connecting to %s: %w", udsPath, err)
	}
	defer c.Close()

	rpcChan, err := c.GetChannel(comms.ChannelRPC)
	if err != nil {
		return fmt.Errorf("cartonrunner: claiming Rpc channel: %w", err)
	}
	rpcConn := transport.NewConn[rpc.Envelope, rpc.Envelope](rpcChan)
	server := rpc.Serve(rpcConn, noop.New())
	_ = server

	fsChan, err := c.GetChannel(comms.ChannelFileSystem)
	if err != nil {
		return fmt.Errorf("cartonrunner: claiming FileSystem channel: %w", err)
	}
	fsMux := mux.New[vfsrpc.Message](fsChan, false)
	modelFS := vfsrpc.Connect(fsMux.GetStreamForID(loader.FileSystemStreamID), vfsrpc.Capabilities{Read: true, Seek: true})
	_ = modelFS // available to a Handler.Load implementation that inspects model files

	slog.Info("cartonrunner: ready", "uds_path", udsPath)
	select {} // blocks forever; the process runs until it is killed (the loader's cleanup kills it)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
