package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/centosci/kaijs-bridge/bridgeerr"
	"github.com/centosci/kaijs-bridge/fqueue"
	"github.com/centosci/kaijs-bridge/handlers"
	"github.com/centosci/kaijs-bridge/internal/buildinfo"
	"github.com/centosci/kaijs-bridge/internal/config"
	"github.com/centosci/kaijs-bridge/internal/logging"
	"github.com/centosci/kaijs-bridge/kojihub"
	"github.com/centosci/kaijs-bridge/model"
	"github.com/centosci/kaijs-bridge/router"
	"github.com/centosci/kaijs-bridge/store"
	"github.com/centosci/kaijs-bridge/updater"
	"github.com/centosci/kaijs-bridge/validator"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Run the file-queue consumer loop that writes artifact documents",
	RunE:  runLoad,
}

func runLoad(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logging.SetDefault(logging.New(logging.Config{Level: logging.Level(cfg.LogLevel)}))
	log := logging.Component("loader", buildinfo.Get().MainVersion)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fq, err := fqueue.Make(cfg.FileQueueDir, fqueue.Options{PollInterval: cfg.FileQueuePoll})
	if err != nil {
		return err
	}
	defer fq.Stop()

	docStore, err := openDocStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer docStore.Close(ctx)

	if err := docStore.OpenCollection(ctx, cfg.ArtifactsCollection, []store.IndexSpec{
		{Name: "type_aid", Keys: map[string]int{"type": 1, "aid": 1}, Unique: true},
	}); err != nil {
		return err
	}
	if err := docStore.OpenCollection(ctx, cfg.InvalidCollection, nil); err != nil {
		return err
	}
	if err := docStore.OpenCollection(ctx, cfg.UnknownCollection, nil); err != nil {
		return err
	}

	schemaValidator := validator.NewSchemaValidator(validator.NewHTTPSchemaSource(cfg.SchemasURL), log)
	if err := schemaValidator.Refresh(ctx); err != nil {
		log.WithError(err).Error("initial schema refresh failed, starting with an empty snapshot")
	}
	if err := schemaValidator.StartPeriodicRefresh(cfg.SchemaRefreshCron); err != nil {
		return err
	}
	defer schemaValidator.Stop()

	deps := handlers.Deps{
		DocStore:   docStore,
		Collection: cfg.ArtifactsCollection,
		Hubs: kojihub.HubForType{
			string(model.TypeKojiBuild): kojihub.NewHTTPClient(cfg.KojiHubURL),
			string(model.TypeBrewBuild): kojihub.NewHTTPClient(cfg.BrewHubURL),
		},
	}
	r := router.New()
	handlers.Register(r, deps)

	invalid := store.NewInvalidStore(docStore, cfg.InvalidCollection)
	unknown := store.NewUnknownTopicStore(docStore, cfg.UnknownCollection)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGABRT)
	go func() {
		<-sigCh
		log.Info("shutdown signal received, stopping file-queue watcher")
		fq.Stop()
		cancel()
	}()

	if cfg.DocStoreBackend == config.BackendOpenSearch {
		bu := &updater.BulkUpdater{
			Validator: schemaValidator,
			Router:    r,
			Invalid:   invalid,
			Unknown:   unknown,
		}
		acc := updater.NewBulkAccumulator(docStore, cfg.ArtifactsCollection, cfg.BulkMaxBytes)
		if cfg.BulkMaxOps > 0 {
			acc.MaxOps = cfg.BulkMaxOps
		}
		return consumeLoopBulk(ctx, fq, bu, acc, log)
	}

	up := &updater.Updater{
		Validator:  schemaValidator,
		Router:     r,
		DocStore:   docStore,
		Collection: cfg.ArtifactsCollection,
		Invalid:    invalid,
		Unknown:    unknown,
	}
	return consumeLoop(ctx, fq, up, log)
}

// consumeLoop sequentially pops from fq and drives up until the context is
// cancelled or the queue reports it has been stopped. No envelope advances
// until the previous one has committed or rolled back.
func consumeLoop(ctx context.Context, fq *fqueue.Queue, up *updater.Updater, log *logging.ContextLogger) error {
	for {
		popped, err := fq.Tpop(ctx)
		if err != nil {
			if err == fqueue.ErrStopped || ctx.Err() != nil {
				return nil
			}
			return err
		}

		err = up.Process(ctx, popped.Message)
		switch {
		case err == nil:
			if cerr := popped.Commit(); cerr != nil {
				return cerr
			}
		case isRetryable(err):
			log.WithError(err).WithField("fq_msg_id", popped.Message.FQMsgID).Error("rolling back envelope for retry")
			if rerr := popped.Rollback(); rerr != nil {
				return rerr
			}
		default:
			popped.Rollback()
			return err
		}
	}
}

// consumeLoopBulk drives the indexed-store (OpenSearch) variant: envelopes
// are accumulated instead of written one at a time, and flushed at the
// size, byte, or idle-gap trigger. On shutdown the accumulator is flushed
// (committing everything accumulated) or, on flush failure, rolled back —
// never both, never neither.
func consumeLoopBulk(ctx context.Context, fq *fqueue.Queue, bu *updater.BulkUpdater, acc *updater.BulkAccumulator, log *logging.ContextLogger) error {
	for {
		popCtx := ctx
		var cancel context.CancelFunc
		if acc.Len() > 0 {
			popCtx, cancel = context.WithTimeout(ctx, acc.IdleGap)
		}
		popped, err := fq.Tpop(popCtx)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				if acc.IdleExceeded() {
					if ferr := acc.Flush(ctx); ferr != nil {
						return ferr
					}
				}
				continue
			}
			if err == fqueue.ErrStopped || ctx.Err() != nil {
				if acc.Len() > 0 {
					return acc.Flush(ctx)
				}
				return nil
			}
			return err
		}

		accumulated, perr := bu.Process(ctx, popped.Message, popped, acc)
		switch {
		case perr == nil && accumulated:
			// ownership of popped now belongs to acc; it commits or rolls
			// back at the next flush.
		case perr == nil:
			if cerr := popped.Commit(); cerr != nil {
				return cerr
			}
		case isRetryable(perr):
			log.WithError(perr).WithField("fq_msg_id", popped.Message.FQMsgID).Error("rolling back envelope for retry")
			if rerr := popped.Rollback(); rerr != nil {
				return rerr
			}
		default:
			popped.Rollback()
			return perr
		}

		if acc.ShouldFlush() {
			if ferr := acc.Flush(ctx); ferr != nil {
				return ferr
			}
		}
	}
}

func isRetryable(err error) bool {
	_, ok := err.(*bridgeerr.ExternalQueryError)
	return ok
}

func openDocStore(ctx context.Context, cfg *config.Config) (store.DocStore, error) {
	switch cfg.DocStoreBackend {
	case config.BackendOpenSearch:
		return store.NewOpenSearchStore([]string{cfg.DocStoreURL})
	default:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return store.NewMongoStore(connectCtx, cfg.DocStoreURL, cfg.DocStoreDatabase)
	}
}
