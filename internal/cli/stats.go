package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/relaypan/internal/config"
	"github.com/ppiankov/relaypan/internal/store"
)

var statsFormat string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show delivery counts per subreddit and category",
	RunE:  statsAction,
}

func init() {
	statsCmd.Flags().StringVar(&statsFormat, "format", "terminal", "output format: terminal, json")
	rootCmd.AddCommand(statsCmd)
}

func statsAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()

	stats, err := db.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	if len(stats) == 0 {
		if statsFormat == "json" {
			fmt.Fprintln(os.Stdout, `{"subreddits":[],"categories":{}}`)
			return nil
		}
		fmt.Fprintln(os.Stdout, "Nothing delivered yet. Run 'relaypan run' first.")
		return nil
	}

	switch statsFormat {
	case "json":
		return printStatsJSON(os.Stdout, stats)
	case "terminal", "":
		printStats(os.Stdout, stats)
		return nil
	default:
		return fmt.Errorf("unknown format %q (want terminal or json)", statsFormat)
	}
}

type jsonStatsOutput struct {
	Subreddits []jsonSubredditStats `json:"subreddits"`
	Categories map[string]int       `json:"categories"`
}

type jsonSubredditStats struct {
	Subreddit string    `json:"subreddit"`
	Category  string    `json:"category"`
	Total     int       `json:"total"`
	LastSeen  time.Time `json:"last_seen"`
}

func printStatsJSON(w io.Writer, stats []store.SubredditStats) error {
	rows := make([]jsonSubredditStats, 0, len(stats))
	categories := make(map[string]int)
	for _, st := range stats {
		rows = append(rows, jsonSubredditStats{
			Subreddit: st.Subreddit,
			Category:  st.Category,
			Total:     st.Total,
			LastSeen:  st.LastSeen,
		})
		categories[st.Category] += st.Total
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonStatsOutput{Subreddits: rows, Categories: categories})
}

func printStats(w io.Writer, stats []store.SubredditStats) {
	total := 0
	subreddits := make(map[string]bool)
	categories := make(map[string]int)
	for _, st := range stats {
		total += st.Total
		subreddits[st.Subreddit] = true
		categories[st.Category] += st.Total
	}

	fmt.Fprintf(w, "relaypan stats — %d delivered from %d subreddits\n\n", total, len(subreddits))

	// Column width for subreddit name
	maxSub := 9 // minimum "Subreddit"
	for _, st := range stats {
		if len(st.Subreddit) > maxSub {
			maxSub = len(st.Subreddit)
		}
	}
	if maxSub > 40 {
		maxSub = 40
	}

	fmt.Fprintf(w, "  %-*s  %-19s  %5s  %s\n", maxSub, "Subreddit", "Category", "Count", "Last Delivered")
	for _, st := range stats {
		name := st.Subreddit
		if len(name) > maxSub {
			name = name[:maxSub-1] + "…"
		}
		fmt.Fprintf(w, "  %-*s  %-19s  %5d  %s\n",
			maxSub, name, st.Category, st.Total, st.LastSeen.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "--- By Category ---")
	fmt.Fprintln(w)
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if categories[names[i]] != categories[names[j]] {
			return categories[names[i]] > categories[names[j]]
		}
		return names[i] < names[j]
	})
	for _, name := range names {
		fmt.Fprintf(w, "  %-19s  %5d  (%.1f%%)\n", name, categories[name], pct(categories[name], total))
	}
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
