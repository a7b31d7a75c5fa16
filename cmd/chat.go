package cmd

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/joescharf/cdesk/internal/backend"
	"github.com/joescharf/cdesk/internal/bus"
	"github.com/joescharf/cdesk/internal/coordinator"
	"github.com/joescharf/cdesk/internal/lock"
	"github.com/joescharf/cdesk/internal/tui"
)

var (
	chatResume string
	chatTitle  string
)

var chatCmd = &cobra.Command{
	Use:   "chat [dir]",
	Short: "Open an interactive coding session",
	Long: `Open an interactive session bound to a working directory (default:
the current directory). Use --resume with a session id to continue an
earlier conversation in the same directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		return chatRun(cmd.Context(), dir)
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatResume, "resume", "", "Session id to resume")
	chatCmd.Flags().StringVar(&chatTitle, "title", "", "Session title (default: directory name)")
	rootCmd.AddCommand(chatCmd)
}

func chatRun(ctx context.Context, dir string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve directory: %w", err)
	}
	if info, err := os.Stat(absDir); err != nil || !info.IsDir() {
		return fmt.Errorf("not a directory: %s", absDir)
	}

	// Warn when another assistant already works in this tree.
	detector := &backend.OSProcessDetector{}
	if detector.IsAssistantRunning(absDir) {
		ui.Warning("A claude process is already running under %s", absDir)
	}

	// One chat per working directory. Lock files live in the config dir,
	// keyed by the directory path, so parallel chats in other trees still
	// work.
	cfgDir, err := configDirFunc()
	if err != nil {
		return err
	}
	chatLock := lock.New(filepath.Join(cfgDir, fmt.Sprintf("chat-%s.pid", pathKey(absDir))))
	if err := chatLock.Acquire(); err != nil {
		return fmt.Errorf("another chat is open in %s: %w", absDir, err)
	}
	defer chatLock.Release()

	events := bus.New()
	be, err := newBackend(events)
	if err != nil {
		return err
	}

	coord := coordinator.New(s, be, events, ui, coordinator.Options{
		WatcherIgnore: viper.GetStringSlice("watcher.ignore"),
	})
	defer coord.Close()

	sessionID := chatResume
	if sessionID != "" {
		if _, err := coord.LoadSession(ctx, sessionID); err != nil {
			return err
		}
	} else {
		sess, err := coord.CreateSession(ctx, absDir, chatTitle)
		if err != nil {
			return err
		}
		sessionID = sess.ID
	}

	if viper.GetBool("preview.auto_refresh") {
		coord.SetPreviewEnabled(true)
	}

	if err := coord.StartCLI(ctx, sessionID, chatResume); err != nil {
		return err
	}

	prog := tea.NewProgram(tui.NewModel(coord), tea.WithAltScreen())

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := prog.Run()
		return err
	})
	g.Go(func() error {
		<-gCtx.Done()
		prog.Quit()
		return nil
	})
	return g.Wait()
}

// pathKey renders a filesystem path as a short stable lock-file key.
func pathKey(path string) string {
	h := fnv.New32a()
	h.Write([]byte(path))
	return fmt.Sprintf("%08x", h.Sum32())
}
