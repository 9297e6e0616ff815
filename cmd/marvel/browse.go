package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/marvel-client/internal/tui"
	"github.com/Sternrassler/marvel-client/pkg/logging"
	"github.com/Sternrassler/marvel-client/pkg/pagination"
)

// browseEndThreshold is how many rows before the end the next page is requested.
const browseEndThreshold = 3

type browseArgs struct {
	root *rootArgs

	Name    string
	OrderBy string
	LogFile string
}

func (ba *browseArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ba.Name, "name", "", "Only characters whose name starts with this")
	cmd.Flags().StringVar(&ba.OrderBy, "order-by", "", `Sort order: name, modified, -name or -modified`)
	cmd.Flags().StringVar(&ba.LogFile, "log-file", "", "Write logs to this file (logs are discarded otherwise)")
}

func newBrowseCmd(root *rootArgs) *cobra.Command {
	args := &browseArgs{root: root}

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse characters interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return args.run(cmd)
		},
	}
	args.AddFlags(cmd)

	return cmd
}

func (ba *browseArgs) run(cmd *cobra.Command) error {
	cfg := ba.root.cfg

	// The terminal belongs to the UI from here on.
	var logOut io.Writer = io.Discard
	if ba.LogFile != "" {
		f, err := os.OpenFile(ba.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	lc := cfg.Logging()
	lc.Output = logOut
	lc.Pretty = false
	logging.Setup(lc)

	b, err := newBackend(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	var fetcher pagination.PageFetcher = b.client
	if ba.Name != "" || ba.OrderBy != "" {
		fetcher = b.client.Filtered(ba.Name, ba.OrderBy)
	}

	bridge := tui.NewBridge(64)
	ctrl, err := pagination.NewController(fetcher,
		pagination.Config{
			PageSize:     cfg.PageSize,
			EndThreshold: browseEndThreshold,
		},
		pagination.WithListener(bridge),
		pagination.WithNavigator(bridge),
	)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	title := "Marvel Characters"
	if ba.Name != "" {
		title = fmt.Sprintf("Marvel Characters: %q", ba.Name)
	}

	return tui.Run(ctrl, bridge, tui.Options{
		Title:       title,
		Attribution: b.client.Attribution,
	})
}
