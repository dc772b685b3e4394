// Package vocab assembles the vocabulary a user has learned: subjects up to
// the user's level whose assignments have reached a minimum SRS stage.
package vocab

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/wanikani-client/pkg/query"
	"github.com/Sternrassler/wanikani-client/pkg/resource"
	"github.com/Sternrassler/wanikani-client/pkg/retry"
	"github.com/Sternrassler/wanikani-client/pkg/wanikani"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Source is the subset of *wanikani.Client the builder reads from.
type Source interface {
	GetUser(ctx context.Context) (resource.Record, error)
	Subjects(ctx context.Context, q wanikani.SubjectQuery) *wanikani.Records
	Assignments(ctx context.Context, q wanikani.AssignmentQuery) *wanikani.Records
}

// Entry is one learned vocabulary item.
type Entry struct {
	SubjectID  int64  `json:"subject_id"`
	Characters string `json:"characters"`
	Level      int    `json:"level"`
}

// Config controls which subjects count as learned.
type Config struct {
	// SubjectType filters both listings.
	SubjectType string
	// MinSRSStage is the lowest assignment stage treated as learned.
	MinSRSStage int
	// Cumulative includes every level up to the user's level.
	Cumulative bool
	// MaxPages bounds each listing; 0 means unbounded.
	MaxPages int
	// Retry, when set, restarts a failed listing from its first page.
	Retry *retry.Config
}

// DefaultConfig returns Guru-and-above kanji vocabulary across all levels
// up to the user's, without retries.
func DefaultConfig() Config {
	return Config{
		SubjectType: query.DefaultSubjectType,
		MinSRSStage: query.DefaultMinSRSStage,
		Cumulative:  true,
	}
}

// Builder assembles vocabulary lists.
type Builder struct {
	source Source
	config Config
	logger zerolog.Logger
}

// NewBuilder creates a builder reading from source.
func NewBuilder(source Source, cfg Config) *Builder {
	return &Builder{
		source: source,
		config: cfg,
		logger: log.With().Str("component", "vocab").Logger(),
	}
}

// Build reads the current user's level and returns the vocabulary learned
// up to it.
func (b *Builder) Build(ctx context.Context) ([]Entry, error) {
	user, err := b.source.GetUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	level := int(user.Int("level"))
	if level <= 0 {
		return nil, fmt.Errorf("user record has no level")
	}
	return b.BuildForLevel(ctx, level)
}

// BuildForLevel returns subjects up to level that have a learned assignment
// and non-empty characters, in subject order. On failure no entries are
// returned.
func (b *Builder) BuildForLevel(ctx context.Context, level int) ([]Entry, error) {
	start := time.Now()

	learned, err := b.learnedSubjects(ctx)
	if err != nil {
		return nil, err
	}

	var subjects []resource.Record
	err = b.collect(ctx, func(ctx context.Context) error {
		var err error
		subjects, err = b.source.Subjects(ctx, wanikani.SubjectQuery{
			SubjectType: b.config.SubjectType,
			Level:       level,
			Cumulative:  b.config.Cumulative,
			MaxPages:    b.config.MaxPages,
		}).Collect()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}

	entries := make([]Entry, 0, len(learned))
	for _, s := range subjects {
		if _, ok := learned[s.ID]; !ok {
			continue
		}
		chars := s.String("characters")
		if chars == "" {
			continue
		}
		entries = append(entries, Entry{
			SubjectID:  s.ID,
			Characters: chars,
			Level:      int(s.Int("level")),
		})
	}

	b.logger.Info().
		Int("level", level).
		Int("assignments", len(learned)).
		Int("subjects", len(subjects)).
		Int("entries", len(entries)).
		Dur("duration", time.Since(start)).
		Msg("Vocabulary built")

	return entries, nil
}

func (b *Builder) learnedSubjects(ctx context.Context) (map[int64]struct{}, error) {
	var assignments []resource.Record
	err := b.collect(ctx, func(ctx context.Context) error {
		var err error
		assignments, err = b.source.Assignments(ctx, wanikani.AssignmentQuery{
			SubjectType: b.config.SubjectType,
			MinSRSStage: b.config.MinSRSStage,
			MaxPages:    b.config.MaxPages,
		}).Collect()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}

	ids := make(map[int64]struct{}, len(assignments))
	for _, a := range assignments {
		ids[a.Int("subject_id")] = struct{}{}
	}
	return ids, nil
}

// collect runs op once, or under retry.Do when retries are configured.
func (b *Builder) collect(ctx context.Context, op func(context.Context) error) error {
	if b.config.Retry == nil {
		return op(ctx)
	}
	return retry.Do(ctx, *b.config.Retry, op)
}

// Characters returns the characters of each entry in order.
func Characters(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Characters
	}
	return out
}
