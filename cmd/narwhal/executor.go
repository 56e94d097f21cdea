package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"bytemomo/narwhal/internal/adapter/grpcexec"
	"bytemomo/narwhal/internal/adapter/logger"
	"bytemomo/narwhal/internal/adapter/shell"
	"bytemomo/narwhal/internal/config"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

var (
	listenAddr  string
	execWorkDir string
)

var executorCmd = &cobra.Command{
	Use:   "executor",
	Short: "Command executor service",
}

var executorServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local shell executor over gRPC",
	Long: `Serve the local shell executor over gRPC so that missions can run their
commands on this host (executor.kind: grpc in the campaign file).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		level := logLevel
		if level == "" {
			level = "info"
		}
		closeLog, err := logger.Configure(level, logFile, structured)
		if err != nil {
			return err
		}
		defer closeLog()

		opts := config.Default().Executor
		if execWorkDir != "" {
			opts.WorkDir = execWorkDir
		}
		l := log.WithField("component", "executor")

		lis, err := net.Listen("tcp", listenAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", listenAddr, err)
		}

		s := grpc.NewServer()
		grpcexec.Register(s, &grpcexec.Server{Backend: shell.New(opts, l), Log: l})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go func() {
			<-ctx.Done()
			s.GracefulStop()
		}()

		l.WithField("addr", lis.Addr().String()).Info("Executor listening")
		return s.Serve(lis)
	},
}

func init() {
	executorServeCmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:7443", "Address to listen on")
	executorServeCmd.Flags().StringVar(&execWorkDir, "work-dir", "", "Working directory for commands")
	executorCmd.AddCommand(executorServeCmd)
}
