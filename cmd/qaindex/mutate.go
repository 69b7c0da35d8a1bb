package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flemzord/qaindex/internal/qaindex"
	"github.com/flemzord/qaindex/pkg/app"
)

func askCmd(g *globalFlags) *cobra.Command {
	var author, at string
	cmd := &cobra.Command{
		Use:   "ask <session> <question...>",
		Short: "Append a question to a session and print its seq",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := parseTime("timestamp", at)
			if err != nil {
				return err
			}
			return withStore(cmd, g, func(ctx context.Context, inst *app.Instance) error {
				rec, err := inst.Store.AppendQuestion(ctx, args[0], strings.Join(args[1:], " "), ts, author)
				if err != nil {
					return err
				}
				if g.jsonOut {
					return printJSON(cmd.OutOrStdout(), rec)
				}
				fmt.Fprintln(cmd.OutOrStdout(), rec.Seq)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&author, "author", "a", "", "Who asked")
	cmd.Flags().StringVar(&at, "at", "", "Question time, RFC 3339 (default now)")
	return cmd
}

// answerFlags are shared by answer and log.
type answerFlags struct {
	tags         []string
	significance float64
}

func (f *answerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&f.tags, "tag", "t", nil, "Topic tag (repeatable)")
	cmd.Flags().Float64Var(&f.significance, "significance", 0, "Override the computed significance (0 to 1)")
}

// override returns the significance flag only when it was set.
func (f *answerFlags) override(cmd *cobra.Command) *float64 {
	if !cmd.Flags().Changed("significance") {
		return nil
	}
	v := f.significance
	return &v
}

func answerCmd(g *globalFlags) *cobra.Command {
	var f answerFlags
	cmd := &cobra.Command{
		Use:   "answer <session> <seq> <answer...>",
		Short: "Record the answer of an entry",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := parseSeq(args[1])
			if err != nil {
				return err
			}
			return withStore(cmd, g, func(ctx context.Context, inst *app.Instance) error {
				rec, err := inst.Store.RecordAnswer(ctx, args[0], seq, qaindex.AnswerInput{
					Answer:       strings.Join(args[2:], " "),
					TopicTags:    f.tags,
					Significance: f.override(cmd),
				})
				if err != nil {
					return err
				}
				return printRecords(cmd.OutOrStdout(), g, []qaindex.Record{rec})
			})
		},
	}
	f.register(cmd)
	return cmd
}

func logCmd(g *globalFlags) *cobra.Command {
	var f answerFlags
	var author string
	cmd := &cobra.Command{
		Use:   "log <session> <question> <answer>",
		Short: "Log a question together with its answer",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, g, func(ctx context.Context, inst *app.Instance) error {
				rec, err := inst.Store.LogExchange(ctx, qaindex.ExchangeInput{
					SessionID:    args[0],
					Question:     args[1],
					Answer:       args[2],
					Author:       author,
					TopicTags:    f.tags,
					Significance: f.override(cmd),
				})
				if err != nil {
					return err
				}
				return printRecords(cmd.OutOrStdout(), g, []qaindex.Record{rec})
			})
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&author, "author", "a", "", "Who asked")
	return cmd
}

func tagsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tags <session> <seq> [tag...]",
		Short: "Replace the topic tags of an entry (no tags clears them)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := parseSeq(args[1])
			if err != nil {
				return err
			}
			return withStore(cmd, g, func(ctx context.Context, inst *app.Instance) error {
				rec, err := inst.Store.UpdateTags(ctx, args[0], seq, args[2:])
				if err != nil {
					return err
				}
				return printRecords(cmd.OutOrStdout(), g, []qaindex.Record{rec})
			})
		},
	}
}

func significanceCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "significance <session> <seq> <value>",
		Short: "Override the significance of an answered entry",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := parseSeq(args[1])
			if err != nil {
				return err
			}
			value, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return &qaindex.ValidationError{Field: "significance", Reason: "must be a number"}
			}
			return withStore(cmd, g, func(ctx context.Context, inst *app.Instance) error {
				rec, err := inst.Store.UpdateSignificance(ctx, args[0], seq, value)
				if err != nil {
					return err
				}
				return printRecords(cmd.OutOrStdout(), g, []qaindex.Record{rec})
			})
		},
	}
}

func archiveCmd(g *globalFlags) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "archive <session>",
		Short: "Remove a session from the index and print it as JSON",
		Long: "Remove a session and every index reference to it. The removed session is " +
			"printed as JSON, or written to --out before the removal is committed.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, g, func(ctx context.Context, inst *app.Instance) error {
				if out != "" {
					// Write the copy first so a failed write keeps the session.
					sess, err := inst.Store.Session(ctx, args[0])
					if err != nil {
						return err
					}
					if err := writeJSONFile(out, sess); err != nil {
						return err
					}
				}
				sess, err := inst.Store.Archive(ctx, args[0])
				if err != nil {
					return err
				}
				if out != "" {
					if err := writeJSONFile(out, sess); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Archived %s (%d entries) to %s\n", sess.SessionID, len(sess.QASequence), out)
					return nil
				}
				return printJSON(cmd.OutOrStdout(), sess)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the archived session to this file")
	return cmd
}
