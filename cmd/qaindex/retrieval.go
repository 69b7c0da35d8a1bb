package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/flemzord/qaindex/internal/cron"
	"github.com/flemzord/qaindex/internal/extract"
	"github.com/flemzord/qaindex/internal/qaindex"
	"github.com/flemzord/qaindex/pkg/app"
)

func topicsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "topics",
		Short: "List topics by entry count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, g, func(ctx context.Context, inst *app.Instance) error {
				topics, err := inst.Store.Topics(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if g.jsonOut {
					return printJSON(out, topics)
				}
				if len(topics) == 0 {
					fmt.Fprintln(out, "No topics.")
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TOPIC\tENTRIES")
				for _, t := range topics {
					fmt.Fprintf(tw, "%s\t%d\n", t.Topic, t.Count)
				}
				return tw.Flush()
			})
		},
	}
}

func topicCmd(g *globalFlags) *cobra.Command {
	var since, until string
	cmd := &cobra.Command{
		Use:   "topic <topic>",
		Short: "List the entries tagged with a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseTime("since", since)
			if err != nil {
				return err
			}
			to, err := parseTime("until", until)
			if err != nil {
				return err
			}
			return withStore(cmd, g, func(ctx context.Context, inst *app.Instance) error {
				recs, err := inst.Store.ByTopicRange(ctx, args[0], from, to)
				if err != nil {
					return err
				}
				return printRecords(cmd.OutOrStdout(), g, recs)
			})
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "Only entries at or after this RFC 3339 time")
	cmd.Flags().StringVar(&until, "until", "", "Only entries before this RFC 3339 time")
	return cmd
}

func recentCmd(g *globalFlags) *cobra.Command {
	var session string
	var n int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the last entries of a session, or across sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, g, func(ctx context.Context, inst *app.Instance) error {
				var recs []qaindex.Record
				var err error
				if session != "" {
					recs, err = inst.Store.Recent(ctx, session, n)
				} else {
					recs, err = inst.Store.Latest(ctx, n)
				}
				if err != nil {
					return err
				}
				return printRecords(cmd.OutOrStdout(), g, recs)
			})
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", "", "Session id")
	cmd.Flags().IntVarP(&n, "n", "n", qaindex.DefaultWindow, "Number of entries")
	return cmd
}

func hashCmd(g *globalFlags) *cobra.Command {
	var question bool
	cmd := &cobra.Command{
		Use:   "hash <hash>",
		Short: "Resolve a question hash to its entry",
		Long:  "Resolve a question hash to the entry that last asked it. With --question the argument is hashed first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, g, func(ctx context.Context, inst *app.Instance) error {
				hash := args[0]
				if question {
					hash = inst.Store.Hash(args[0])
				}
				rec, err := inst.Store.ByHash(ctx, hash)
				if err != nil {
					return err
				}
				return printRecords(cmd.OutOrStdout(), g, []qaindex.Record{rec})
			})
		},
	}
	cmd.Flags().BoolVar(&question, "question", false, "Treat the argument as question text")
	return cmd
}

func sessionCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "session <id>",
		Short: "Show a full session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, g, func(ctx context.Context, inst *app.Instance) error {
				sess, err := inst.Store.Session(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if g.jsonOut {
					return printJSON(out, sess)
				}
				fmt.Fprintf(out, "Session %s (created %s, updated %s)\n\n",
					sess.SessionID, sess.Created.Format(time.RFC3339), sess.LastUpdated.Format(time.RFC3339))
				recs := make([]qaindex.Record, 0, len(sess.QASequence))
				for _, e := range sess.QASequence {
					recs = append(recs, qaindex.Record{SessionID: sess.SessionID, Entry: *e})
				}
				return printRecords(out, g, recs)
			})
		},
	}
}

func sessionsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, g, func(ctx context.Context, inst *app.Instance) error {
				sessions, err := inst.Store.Sessions(ctx)
				if err != nil {
					return err
				}
				if g.jsonOut {
					return printJSON(cmd.OutOrStdout(), sessions)
				}
				return printSessions(cmd.OutOrStdout(), sessions)
			})
		},
	}
}

func statsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index metadata and per-session counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, g, func(ctx context.Context, inst *app.Instance) error {
				stats, err := inst.Store.Stats(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if g.jsonOut {
					return printJSON(out, stats)
				}
				m := stats.Metadata
				fmt.Fprintf(out, "Entries:           %d\n", m.TotalQAPairs)
				fmt.Fprintf(out, "Stored answers:    %d\n", m.StoredAnswers)
				fmt.Fprintf(out, "Avg significance:  %.2f\n", m.AvgSignificance)
				fmt.Fprintf(out, "Compression ratio: %.2f\n", m.CompressionRatio)
				fmt.Fprintf(out, "Sessions:          %d\n", m.Sessions)
				fmt.Fprintf(out, "Topics:            %d\n", m.Topics)
				if !m.LastUpdated.IsZero() {
					fmt.Fprintf(out, "Last updated:      %s\n", m.LastUpdated.Format(time.RFC3339))
				}
				if len(stats.PerSession) > 0 {
					fmt.Fprintln(out)
					return printSessions(out, stats.PerSession)
				}
				return nil
			})
		},
	}
}

func queryCmd(g *globalFlags) *cobra.Command {
	var q qaindex.OverlapQuery
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Find past questions sharing tokens with the text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q.Text = strings.Join(args, " ")
			return withStore(cmd, g, func(ctx context.Context, inst *app.Instance) error {
				matches, err := inst.Store.ByTokenOverlap(ctx, q)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if g.jsonOut {
					return printJSON(out, matches)
				}
				if len(matches) == 0 {
					fmt.Fprintln(out, "No matches.")
					return nil
				}
				for _, m := range matches {
					fmt.Fprintf(out, "%.2f  ", m.Score)
					printRecord(out, m.Record)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&q.Limit, "limit", "l", 10, "Maximum matches")
	cmd.Flags().Float64Var(&q.MinSignificance, "min-significance", 0, "Minimum answer significance")
	cmd.Flags().BoolVar(&q.RequireAnswer, "answered", false, "Only entries with a stored answer")
	cmd.Flags().StringVarP(&q.SessionID, "session", "s", "", "Restrict to one session")
	return cmd
}

func contextCmd(g *globalFlags) *cobra.Command {
	var window, maxChars int
	var analysis bool
	cmd := &cobra.Command{
		Use:   "context <session>",
		Short: "Print the recent conversation as a markdown block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, g, func(ctx context.Context, inst *app.Instance) error {
				items, err := inst.Store.ContextWindow(ctx, args[0], window)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if g.jsonOut {
					return printJSON(out, items)
				}
				fmt.Fprint(out, qaindex.FormatContext(items, qaindex.FormatOptions{MaxAnswerChars: maxChars}))
				if analysis {
					if report, err := extract.LatestReport(reportDir(inst)); err == nil {
						fmt.Fprintln(out)
						fmt.Fprint(out, extract.FormatAnalysis(report))
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&window, "window", "w", qaindex.DefaultWindow, "Number of entries")
	cmd.Flags().IntVar(&maxChars, "max-answer-chars", 200, "Truncate answers to this many characters (0 = no limit)")
	cmd.Flags().BoolVar(&analysis, "analysis", false, "Append the latest extraction analysis")
	return cmd
}

// reportDir is where extraction runs are saved: the scheduler's output
// directory when the cron module is configured, else <data-dir>/extractions.
func reportDir(inst *app.Instance) string {
	if svc, ok := inst.Service(cron.ReportDirService); ok {
		if dir, ok := svc.(string); ok && dir != "" {
			return dir
		}
	}
	return filepath.Join(inst.DataDir, "extractions")
}

func printRecords(w io.Writer, g *globalFlags, recs []qaindex.Record) error {
	if g.jsonOut {
		return printJSON(w, recs)
	}
	if len(recs) == 0 {
		fmt.Fprintln(w, "No entries.")
		return nil
	}
	for _, r := range recs {
		printRecord(w, r)
	}
	return nil
}

func printRecord(w io.Writer, r qaindex.Record) {
	fmt.Fprintf(w, "[%s#%d] %s %s: %s\n", r.SessionID, r.Seq, r.Timestamp.Format(time.RFC3339), r.User, r.Q)
	switch {
	case r.HasAnswer():
		fmt.Fprintf(w, "    > %s (significance %.2f)\n", strings.ReplaceAll(r.Answer(), "\n", "\n    > "), r.ASignificance)
	case r.Answered():
		fmt.Fprintf(w, "    (answer discarded, significance %.2f)\n", r.ASignificance)
	}
	if len(r.TopicTags) > 0 {
		fmt.Fprintf(w, "    tags: %s\n", strings.Join(r.TopicTags, ", "))
	}
}

func printSessions(w io.Writer, sessions []qaindex.SessionSummary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tENTRIES\tSTORED\tLAST UPDATED")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", s.SessionID, s.Entries, s.StoredAnswers, s.LastUpdated.Format(time.RFC3339))
	}
	return tw.Flush()
}

func parseTime(name, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, &qaindex.ValidationError{Field: name, Reason: "must be an RFC 3339 time"}
	}
	return t, nil
}

func parseSeq(raw string) (int, error) {
	seq, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &qaindex.ValidationError{Field: "seq", Reason: "must be an integer"}
	}
	return seq, nil
}
