package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/marvel-client/pkg/marvel"
	"github.com/Sternrassler/marvel-client/pkg/pagination"
)

type listArgs struct {
	root *rootArgs

	Offset      int
	Limit       int
	All         bool
	Name        string
	OrderBy     string
	Concurrency int
	Max         int
}

func (la *listArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&la.Offset, "offset", 0, "Index of the first character")
	cmd.Flags().IntVar(&la.Limit, "limit", pagination.DefaultPageSize, fmt.Sprintf("Characters per request, 1-%d (default PAGE_SIZE)", marvel.MaxPageLimit))
	cmd.Flags().BoolVar(&la.All, "all", false, "Fetch every page in parallel")
	cmd.Flags().StringVar(&la.Name, "name", "", "Only characters whose name starts with this")
	cmd.Flags().StringVar(&la.OrderBy, "order-by", "", `Sort order: name, modified, -name or -modified`)
	cmd.Flags().IntVar(&la.Concurrency, "concurrency", 4, "Parallel requests with --all")
	cmd.Flags().IntVar(&la.Max, "max", 0, "Stop after this many characters with --all (0 = no limit)")
}

func newListCmd(root *rootArgs) *cobra.Command {
	args := &listArgs{root: root}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print a page of characters, or all of them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return args.run(cmd)
		},
	}
	args.AddFlags(cmd)

	return cmd
}

func (la *listArgs) run(cmd *cobra.Command) error {
	cfg := la.root.cfg

	limit := la.Limit
	if !cmd.Flags().Changed("limit") {
		limit = cfg.PageSize
		if la.All {
			limit = marvel.MaxPageLimit
		}
	}
	if limit < 1 || limit > marvel.MaxPageLimit {
		return fmt.Errorf("--limit must be between 1 and %d (got %d)", marvel.MaxPageLimit, limit)
	}
	if la.Offset < 0 {
		return fmt.Errorf("--offset must not be negative (got %d)", la.Offset)
	}

	ctx := cmd.Context()
	b, err := newBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	var fetcher pagination.PageFetcher = b.client
	if la.Name != "" || la.OrderBy != "" {
		fetcher = b.client.Filtered(la.Name, la.OrderBy)
	}

	out := cmd.OutOrStdout()

	if la.All {
		start := time.Now()
		characters, err := pagination.NewBatchFetcher(fetcher, pagination.BatchConfig{
			MaxConcurrency: la.Concurrency,
			PageSize:       limit,
			Timeout:        cfg.HTTPTimeout,
			MaxItems:       la.Max,
		}).FetchAll(ctx)

		printCharacters(out, characters, 0)
		if err != nil {
			return fmt.Errorf("stopped after %d characters: %w", len(characters), err)
		}
		fmt.Fprintf(out, "%s characters in %s\n",
			humanize.Comma(int64(len(characters))),
			time.Since(start).Round(time.Millisecond))
	} else {
		page, err := fetcher.FetchPage(ctx, la.Offset, limit)
		if err != nil {
			return err
		}

		printCharacters(out, page.Results, page.Offset)
		printSummary(out, page)
	}

	if text := b.client.Attribution(); text != "" {
		fmt.Fprintln(out, text)
	}
	return nil
}

func printCharacters(w io.Writer, characters []marvel.Character, offset int) {
	if len(characters) == 0 {
		return
	}

	rows := make([][]string, len(characters))
	for i, c := range characters {
		rows[i] = []string{strconv.Itoa(offset + i + 1), strconv.Itoa(c.ID), c.Name}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "ID", "NAME").
		Rows(rows...)
	fmt.Fprintln(w, t.Render())
}

func printSummary(w io.Writer, page *marvel.Page) {
	total := humanize.Comma(int64(page.Total))
	if page.Count == 0 {
		fmt.Fprintf(w, "No characters at offset %d of %s\n", page.Offset, total)
		return
	}

	fmt.Fprintf(w, "Showing %d-%d of %s characters\n", page.Offset+1, page.Offset+page.Count, total)
	if next := page.Offset + page.Count; next < page.Total {
		fmt.Fprintf(w, "Next page: %s list --offset %d\n", cmdName, next)
	}
}
