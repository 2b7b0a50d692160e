package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pattisdr/osf.io/internal/cache"
	"github.com/pattisdr/osf.io/internal/config"
	"github.com/pattisdr/osf.io/internal/identifiers"
	"github.com/pattisdr/osf.io/internal/jobs"
	"github.com/pattisdr/osf.io/internal/queue"
	"github.com/pattisdr/osf.io/internal/search"
	"github.com/pattisdr/osf.io/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(workerCmd())
}

func workerCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "worker",
		Short: "run the background task worker",
		Run: func(cmd *cobra.Command, args []string) {
			cnf := config.LoadConfig()
			db := config.GetDb(cnf)

			var kv cache.KV = cache.NewMemory()
			if cnf.RedisAddr != "" {
				kv = cache.NewRedis(cnf.RedisAddr, cnf.RedisPassword)
			}

			var tasks queue.Queue = queue.NewMemory()
			if cnf.KafkaBrokers != "" {
				consumer, err := queue.NewKafkaConsumer(cnf.KafkaBrokers, cnf.KafkaTopic, cnf.KafkaGroup)
				if err != nil {
					logrus.Fatalf("failed to connect to kafka: %v", err)
				}
				defer consumer.Close()
				tasks = consumer
			} else {
				logrus.Warn("no kafka brokers configured, draining the in-process queue only")
			}

			drain := jobs.NewNodeUpdatedTask(
				tasks,
				store.NewGormStore(db),
				search.NewNoop(),
				identifiers.NewNoop(),
				kv,
			)

			executor := jobs.NewTaskExecutor([]jobs.Job{drain}, nil)
			executor.Run()
			logrus.Info("worker started")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			executor.Stop()
		},
	}

	return command
}
