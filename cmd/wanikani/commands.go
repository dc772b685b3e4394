package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Sternrassler/wanikani-client/internal/config"
	"github.com/Sternrassler/wanikani-client/pkg/query"
	"github.com/Sternrassler/wanikani-client/pkg/vocab"
	"github.com/Sternrassler/wanikani-client/pkg/wanikani"
	"github.com/spf13/cobra"
)

func newUserCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "user",
		Short: "Print the current user as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wk, cleanup, err := a.newClient()
			if err != nil {
				return err
			}
			defer cleanup()

			user, err := wk.GetUser(cmd.Context())
			if err != nil {
				return fmt.Errorf("get user: %w", err)
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(user)
		},
	}
}

// listFlags are the filters shared by subjects and assignments.
type listFlags struct {
	subjectType string
	level       int
	cumulative  bool
	maxPages    int
}

func (f *listFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.subjectType, "type", query.DefaultSubjectType, "subject_type filter; empty for all types")
	cmd.Flags().IntVar(&f.level, "level", 0, "level filter; 0 for all levels")
	cmd.Flags().BoolVar(&f.cumulative, "cumulative", true, "include every level from 1 through --level")
	cmd.Flags().IntVar(&f.maxPages, "max-pages", 0, "stop after this many pages; 0 for all")
}

func newSubjectsCmd(a *app) *cobra.Command {
	var f listFlags
	cmd := &cobra.Command{
		Use:   "subjects",
		Short: "Print subjects as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wk, cleanup, err := a.newClient()
			if err != nil {
				return err
			}
			defer cleanup()

			rows := wk.Subjects(cmd.Context(), wanikani.SubjectQuery{
				SubjectType: f.subjectType,
				Level:       f.level,
				Cumulative:  f.cumulative,
				MaxPages:    f.maxPages,
			})
			return writeRecords(cmd.OutOrStdout(), rows)
		},
	}
	f.register(cmd)
	return cmd
}

func newAssignmentsCmd(a *app) *cobra.Command {
	var f listFlags
	var minStage int
	cmd := &cobra.Command{
		Use:   "assignments",
		Short: "Print assignments as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wk, cleanup, err := a.newClient()
			if err != nil {
				return err
			}
			defer cleanup()

			rows := wk.Assignments(cmd.Context(), wanikani.AssignmentQuery{
				SubjectType: f.subjectType,
				Level:       f.level,
				Cumulative:  f.cumulative,
				MinSRSStage: minStage,
				MaxPages:    f.maxPages,
			})
			return writeRecords(cmd.OutOrStdout(), rows)
		},
	}
	f.register(cmd)
	cmd.Flags().IntVar(&minStage, "min-stage", query.DefaultMinSRSStage, "lowest SRS stage to include (0-9)")
	return cmd
}

// writeRecords prints one JSON object per line. Records already written stay
// written when a later page fails.
func writeRecords(w io.Writer, rows *wanikani.Records) error {
	enc := json.NewEncoder(w)
	for _, rec := range rows.All() {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("write record %d: %w", rec.ID, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list after %d pages: %w", rows.Pages(), err)
	}
	return nil
}

func newVocabCmd(a *app) *cobra.Command {
	var level int
	var plain bool

	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Print the vocabulary learned up to the user's level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wk, cleanup, err := a.newClient()
			if err != nil {
				return err
			}
			defer cleanup()

			b := vocab.NewBuilder(wk, a.vocabConfig())

			var entries []vocab.Entry
			if level > 0 {
				entries, err = b.BuildForLevel(cmd.Context(), level)
			} else {
				entries, err = b.Build(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("build vocabulary: %w", err)
			}

			if plain {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(vocab.Characters(entries), ","))
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&level, "level", 0, "build up to this level instead of the user's level")
	flags.BoolVar(&plain, "plain", false, "print comma-separated characters only")
	flags.Int("min-stage", query.DefaultMinSRSStage, "lowest SRS stage counted as learned (0-9)")
	flags.Bool("cumulative", true, "include every level up to the target level")
	flags.Int("max-pages", 0, "stop each listing after this many pages; 0 for all")
	flags.Int("retries", 1, "attempts per listing on transient failures")

	mustBind(a.v, config.KeyMinSRSStage, flags.Lookup("min-stage"))
	mustBind(a.v, config.KeyCumulative, flags.Lookup("cumulative"))
	mustBind(a.v, config.KeyMaxPages, flags.Lookup("max-pages"))
	mustBind(a.v, config.KeyRetries, flags.Lookup("retries"))

	return cmd
}
