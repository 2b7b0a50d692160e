package cmd

import (
	"context"

	"github.com/fatih/color"
	"github.com/pattisdr/osf.io/internal/addons"
	"github.com/pattisdr/osf.io/internal/auth"
	"github.com/pattisdr/osf.io/internal/cache"
	"github.com/pattisdr/osf.io/internal/compress"
	"github.com/pattisdr/osf.io/internal/config"
	"github.com/pattisdr/osf.io/internal/identifiers"
	"github.com/pattisdr/osf.io/internal/queue"
	"github.com/pattisdr/osf.io/internal/search"
	"github.com/pattisdr/osf.io/internal/service"
	"github.com/pattisdr/osf.io/internal/spam"
	"github.com/pattisdr/osf.io/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func checkMissingFlags(cmd *cobra.Command, required []string) bool {
	missing := false
	for _, name := range required {
		flag := cmd.Flags().Lookup(name)
		if flag == nil || flag.Value.String() == "" {
			color.Red("missing: --%s", name)
			missing = true
		}
	}
	if missing {
		_ = cmd.Help()
	}
	return missing
}

// newService wires the node service over the configured database. The CLI
// keeps side effects in process: an in-memory queue drained by the worker
// command, noop search and identifier clients.
func newService(cnf *config.Config) (*service.NodeService, queue.Queue) {
	db := config.GetDb(cnf)

	var tasks queue.Queue = queue.NewMemory()
	if cnf.KafkaBrokers != "" {
		kafka, err := queue.NewKafka(cnf.KafkaBrokers, cnf.KafkaTopic)
		if err != nil {
			logrus.Fatalf("failed to connect to kafka: %v", err)
		}
		tasks = kafka
	}

	var kv cache.KV = cache.NewMemory()
	if cnf.RedisAddr != "" {
		kv = cache.NewRedis(cnf.RedisAddr, cnf.RedisPassword)
	}

	svc := service.NewNodeService(
		store.NewGormStore(db),
		tasks,
		kv,
		search.NewNoop(),
		identifiers.NewNoop(),
		addons.NewRegistry(),
		snapshotCodec(cnf.SnapshotCodec),
		spam.Policy{FlaggedBlocksPublic: cnf.SpamFlaggedMakeNodePrivate},
	)
	return svc, tasks
}

func snapshotCodec(name string) compress.Compress {
	switch name {
	case "brotli":
		return compress.NewBrotli()
	case "lz4":
		return compress.NewLZ4()
	case "none":
		return compress.NewNop()
	default:
		return compress.NewGZip()
	}
}

func actingUser(svc *service.NodeService, userID string) (*auth.Auth, error) {
	user, err := svc.User(context.Background(), userID)
	if err != nil {
		return nil, err
	}
	return auth.FromUser(user), nil
}

func fatalIf(err error) bool {
	if err != nil {
		logrus.Error(err)
		return true
	}
	return false
}
