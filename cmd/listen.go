package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/centosci/kaijs-bridge/broker"
	"github.com/centosci/kaijs-bridge/fqueue"
	"github.com/centosci/kaijs-bridge/internal/buildinfo"
	"github.com/centosci/kaijs-bridge/internal/config"
	"github.com/centosci/kaijs-bridge/internal/logging"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Run the broker listener that forwards deliveries into the file-queue",
	RunE:  runListen,
}

func init() {
	RootCmd.AddCommand(listenCmd)
}

func runListen(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	logging.SetDefault(logging.New(logging.Config{Level: logging.Level(cfg.LogLevel)}))
	log := logging.Component("listener", buildinfo.Get().MainVersion)

	fq, err := fqueue.Make(cfg.FileQueueDir, fqueue.Options{PollInterval: cfg.FileQueuePoll})
	if err != nil {
		return err
	}
	defer fq.Stop()

	consumer := broker.NewConsumer(broker.Config{
		URL:          cfg.BrokerURL,
		QueueName:    cfg.BrokerQueueName,
		ProviderName: cfg.BrokerProvider,
	}, fq, log)

	if err := consumer.Connect(); err != nil {
		return err
	}
	defer consumer.Close()

	stop := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received, stopping broker listener")
		close(stop)
	}()

	return consumer.Run(stop)
}
