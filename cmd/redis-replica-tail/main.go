// Command redis-replica-tail connects to a Redis primary as a replica
// and prints every decoded snapshot key and replicated command to
// stdout, using github.com/spf13/cobra subcommands in place of the
// teacher's flag.Parse()-driven cmd/server/main.go (SPEC_FULL.md §2).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"redisreplica/internal/config"
	"redisreplica/internal/event"
	"redisreplica/internal/session"
	"redisreplica/pkg/replicaclient"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "redis-replica-tail",
		Short: "Tail a Redis primary's replication stream",
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func newRunCmd() *cobra.Command {
	var (
		configFile string
		host       string
		port       int
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to a primary and print decoded replication events",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg *session.Config
			if configFile != "" {
				var err error
				host, port, cfg, err = config.Load(configFile)
				if err != nil {
					return err
				}
			} else {
				cfg = session.DefaultConfig()
			}
			if verbose {
				cfg.Verbose = true
			}
			if host == "" {
				return fmt.Errorf("redis-replica-tail: --host or a config file host is required")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			client, err := replicaclient.Open(ctx, host, port, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			client.AddEventListener(printingListener{})
			client.AddExceptionListener(printingExceptionListener{})

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&host, "host", "", "primary host")
	cmd.Flags().IntVar(&port, "port", 6379, "primary port")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "enable debug-level command tracing")
	return cmd
}

type printingListener struct{}

func (printingListener) OnEvent(e event.Event) {
	switch ev := e.(type) {
	case event.RDBKey:
		fmt.Printf("[rdb] db=%d key=%q\n", ev.DB, ev.Key)
	case event.Command:
		fmt.Printf("[cmd] %s %s (offset %d-%d)\n", ev.Name, strings.Join(ev.Args, " "), ev.OffsetRange.Start, ev.OffsetRange.End)
	case event.PreCommandSync:
		fmt.Printf("[sync] replId=%s offset=%s\n", ev.ReplID, strconv.FormatInt(ev.ReplOffset, 10))
	case event.PostCommandSync:
		fmt.Printf("[sync] command stream closed at offset %d\n", ev.ReplOffset)
	}
}

type printingExceptionListener struct{}

func (printingExceptionListener) OnException(err error) {
	fmt.Fprintf(os.Stderr, "[error] %v\n", err)
}
