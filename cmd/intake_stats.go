package cmd

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dhcgn/homework-intake/config"
	"github.com/dhcgn/homework-intake/filter"
	"github.com/dhcgn/homework-intake/message"
	"github.com/dhcgn/homework-intake/roster"
	"github.com/dhcgn/homework-intake/runner"
)

// Tracked are the dimensions counted for every message in the intake
// directory.
var Tracked = []string{"From", "Subject", "Outcome"}

const (
	OutcomeEligible   = "eligible"
	OutcomeIneligible = "ineligible"
	OutcomeUnmatched  = "unmatched"
	OutcomeMalformed  = "malformed"
)

// Counts maps a tracked dimension to value frequencies.
type Counts map[string]map[string]int

type Classifier struct {
	Filter *filter.Filter
	Roster *roster.Index
}

// Analyze parses every message file in files and counts senders, subjects
// and the outcome the intake pass would reach before archiving.
func Analyze(files []string, c Classifier) Counts {
	counts := make(Counts, len(Tracked))
	for _, h := range Tracked {
		counts[h] = make(map[string]int)
	}

	for _, path := range files {
		msg, err := message.ParseFile(path)
		if err != nil {
			counts["Outcome"][OutcomeMalformed]++
			continue
		}
		if msg.Sender != "" {
			counts["From"][msg.Sender]++
		}
		if msg.Subject != "" {
			counts["Subject"][msg.Subject]++
		}

		text := filter.MatchText(msg.Subject, msg.AttachmentNames())
		switch {
		case !c.Filter.Allows(text):
			counts["Outcome"][OutcomeIneligible]++
		case c.Roster != nil:
			if _, ok := c.Roster.Match(text); !ok {
				counts["Outcome"][OutcomeUnmatched]++
				continue
			}
			counts["Outcome"][OutcomeEligible]++
		default:
			counts["Outcome"][OutcomeEligible]++
		}
	}
	return counts
}

type Pair struct {
	Key   string
	Value int
}

// Top returns up to limit values of one dimension, most frequent first.
func (c Counts) Top(dimension string, limit int) []Pair {
	pairs := make([]Pair, 0, len(c[dimension]))
	for k, v := range c[dimension] {
		pairs = append(pairs, Pair{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Value != pairs[j].Value {
			return pairs[i].Value > pairs[j].Value
		}
		return pairs[i].Key < pairs[j].Key
	})
	if limit >= 0 && len(pairs) > limit {
		pairs = pairs[:limit]
	}
	return pairs
}

func NewIntakeStatsCmd() *cobra.Command {
	var (
		reportDir string
		topN      int
		noRoster  bool
	)

	cmd := &cobra.Command{
		Use:   "intake-stats",
		Short: "Show who is sending what into the intake directory and how it would be classified",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd)
			if err != nil {
				return err
			}

			var idx *roster.Index
			if !noRoster {
				idx, err = roster.LoadIndex(cfg.RosterOptions())
				if err != nil {
					return fmt.Errorf("load roster: %w", err)
				}
			}

			files, err := runner.PendingFiles(cfg.EmailDir)
			if err != nil {
				return err
			}

			pterm.Info.Printf("Analyzing %d message files in %s\n", len(files), cfg.EmailDir)
			counts := Analyze(files, Classifier{Filter: filter.New(cfg.FilterOptions()), Roster: idx})

			for _, dimension := range Tracked {
				if err := printTop(counts, dimension, topN); err != nil {
					return err
				}
			}

			if reportDir != "" {
				if err := SaveCSVReports(counts, reportDir, 1000); err != nil {
					return fmt.Errorf("error saving CSV reports: %w", err)
				}
				pterm.Success.Printf("Reports saved to directory: %s\n", reportDir)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&reportDir, "stats-output", "o", "", "Write CSV reports to this directory")
	cmd.Flags().IntVarP(&topN, "top", "t", 10, "Number of top items to display per dimension")
	cmd.Flags().BoolVar(&noRoster, "no-roster", false, "Skip identity matching")
	return cmd
}

func printTop(counts Counts, dimension string, limit int) error {
	data := pterm.TableData{{dimension, "Count"}}
	for _, p := range counts.Top(dimension, limit) {
		data = append(data, []string{p.Key, strconv.Itoa(p.Value)})
	}
	pterm.DefaultSection.Printf("Top %d %s", limit, dimension)
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// SaveCSVReports writes report_<dimension>.csv per tracked dimension.
func SaveCSVReports(counts Counts, dir string, limit int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, dimension := range Tracked {
		filePath := filepath.Join(dir, fmt.Sprintf("report_%s.csv", normalizeName(dimension)))
		file, err := os.Create(filePath)
		if err != nil {
			return err
		}

		writer := csv.NewWriter(file)
		if err := writer.Write([]string{"Value", "Count"}); err != nil {
			file.Close()
			return err
		}
		for _, p := range counts.Top(dimension, limit) {
			if err := writer.Write([]string{p.Key, strconv.Itoa(p.Value)}); err != nil {
				file.Close()
				return err
			}
		}

		writer.Flush()
		file.Close()
		if err := writer.Error(); err != nil {
			return err
		}
	}
	return nil
}

func normalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", "_")
	return strings.ReplaceAll(name, " ", "_")
}
