package cli

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/quillci/matrun/internal/executor"
	"github.com/quillci/matrun/pkg/runner"
	"github.com/quillci/matrun/pkg/workflow"
)

const watchDebounce = 500 * time.Millisecond

func newWatchCmd() *cobra.Command {
	var (
		file   string
		branch string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run the workflow whenever the repository changes",
		Long: `watch monitors the repository and runs the workflow for a synthetic
push event after every change, with a short debounce. Runs are not
recorded in history.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wf, err := workflow.Load(file)
			if err != nil {
				return err
			}

			exec := &executor.Executor{
				RepoDir:   cfg.Repo,
				Toolcache: cfg.Toolcache,
				Packages:  cfg.Packages,
				Shell:     cfg.Shell,
				Logger:    logger,
			}
			r, err := runner.New(
				runner.NewJobExecutor(exec, cfg.Workspace, logger),
				runner.WithMaxParallel(cfg.MaxParallel),
				runner.WithLogger(logger),
			)
			if err != nil {
				return err
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return errors.Wrap(err, "unable to create watcher")
			}
			defer watcher.Close()

			err = watchRecursive(watcher, cfg.Repo)
			if err != nil {
				return err
			}

			runOnce := func() {
				ev := workflow.Event{Kind: workflow.PushEvent, Branch: branch, Time: time.Now()}
				res, runErr := r.Run(cmd.Context(), wf, ev)
				if runErr != nil {
					logger.Error("run aborted", slog.Any("error", runErr))

					return
				}
				renderRun(cmd.OutOrStdout(), res, nil)
			}

			logger.Info("watching repository", slog.String("repo", cfg.Repo))
			runOnce()

			var timer *time.Timer
			pending := make(chan struct{}, 1)
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
						continue
					}
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(watchDebounce, func() {
						select {
						case pending <- struct{}{}:
						default:
						}
					})
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					logger.Error("watch error", slog.Any("error", err))
				case <-pending:
					runOnce()
				}
			}
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "workflow.yaml", "workflow definition to run")
	cmd.Flags().StringVarP(&branch, "branch", "b", "main", "branch for the synthetic push events")

	return cmd
}

// watchRecursive adds the directory tree under root to the watcher,
// skipping VCS metadata.
func watchRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".git") {
			return filepath.SkipDir
		}

		return errors.Wrapf(watcher.Add(path), "unable to watch %s", path)
	})
}
