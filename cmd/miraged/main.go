// Command miraged is the host streaming engine's process entrypoint:
// load config, init logging, construct internal/host.Host, open the
// control/data sockets (internal/transport), and run router.Session per
// accepted connection until signaled to stop.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mirage/hostcore/internal/capture"
	"github.com/mirage/hostcore/internal/config"
	"github.com/mirage/hostcore/internal/display"
	"github.com/mirage/hostcore/internal/host"
	"github.com/mirage/hostcore/internal/logging"
	"github.com/mirage/hostcore/internal/router"
	"github.com/mirage/hostcore/internal/transport"
	"github.com/mirage/hostcore/internal/wire"
)

var (
	version = "0.1.0"
	cfgFile string
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "miraged",
	Short: "Mirage host streaming engine",
	Long:  "miraged runs the Mirage host: the TCP control channel, UDP data channel, and every stream/display/input component of the host streaming engine.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the host streaming engine in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("miraged v%s\n", version)
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to host.yaml (default: platform config dir)")
	rootCmd.AddCommand(serveCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, os.Stdout)

	listener, controlPort, dataPort, err := transport.Listen(cfg.ControlPort, cfg.DataPort)
	if err != nil {
		return fmt.Errorf("open sockets: %w", err)
	}
	defer listener.Close()

	h := host.New(host.Config{
		HostID:              uuid.NewString(),
		HostName:            cfg.HostName,
		DataPort:            uint16(dataPort),
		SessionPollInterval: cfg.SessionPollIntervalDuration(),
		UnlockMaxRetries:    cfg.UnlockMaxRetries,
		AppCooldown:         cfg.WindowCooldownDuration(),
		TrustTimeout:        cfg.TrustGateTimeoutDuration(),
	}, buildDeps(listener))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h.Run(ctx)
	defer h.Stop()

	slot := router.NewSlot()

	go func() {
		if err := listener.ServeData(ctx, func(addr *net.UDPAddr, buf []byte) {
			streamID, err := wire.DecodeRegistration(buf)
			if err != nil {
				log.Warn("dropped malformed data-channel registration", "error", err)
				return
			}
			h.RegisterDataAddr(streamID, addr)
		}); err != nil && ctx.Err() == nil {
			log.Error("data listener stopped", "error", err)
		}
	}()

	log.Info("miraged listening", "controlPort", controlPort, "dataPort", dataPort, "hostName", cfg.HostName)

	err = listener.ServeControl(ctx, func(conn *transport.Conn) {
		defer conn.Close()
		session := router.NewSession(conn, h, slot, h.InputController())
		if err := session.Run(ctx); err != nil && ctx.Err() == nil {
			log.Info("control session ended", "remoteAddr", conn.RemoteAddr, "error", err)
		}
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("control listener: %w", err)
	}
	return nil
}

// buildDeps wires every platform collaborator host.Deps needs to either a
// real darwin-backed implementation already in this tree, or a narrow
// placeholder that documents the contract it stands in for: a CloudKit
// trust store, an accessibility-permission UI, and window
// enumeration/activation are not implemented here.
func buildDeps(listener *transport.Listener) host.Deps {
	return host.Deps{
		TrustProvider:  noopTrustStore{},
		TrustDelegate:  autoApproveDelegate{},
		SessionQuerier: alwaysActiveQuerier{},
		DisplayBackend: display.NewCoreGraphicsBackend(),
		Topology:       noopTopology{},
		Activator:      unimplementedActivator{},
		Builder:        capture.NewBuilder(),
		MenuProvider:   noopMenuProvider{},
		MenuExecutor:   noopMenuExecutor{},
		CursorShape:    noopCursorShape{},
		Frontmost:      alwaysFrontmost{},
		DataSender:     listener,
	}
}
