// Package query translates level and SRS stage filters into WaniKani
// query string parameters.
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Query string keys.
const (
	ParamSubjectType = "subject_type"
	ParamLevels      = "levels"
	ParamSRSStages   = "srs_stages"
)

// SRS stage and level bounds. They are fixed by the service and not
// discovered at runtime.
const (
	MinSRSStage        = 0
	MaxSRSStage        = 9
	DefaultMinSRSStage = 5 // Guru
	MaxLevel           = 60
)

// DefaultSubjectType is the subject type requested when none is given.
const DefaultSubjectType = "kanji_vocabulary"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Params describes the filters of a subjects or assignments request.
type Params struct {
	// SubjectType is sent as subject_type when non-empty.
	SubjectType string `validate:"omitempty,max=64"`

	// Level is the user level to filter on; 0 means no level filter.
	Level int `validate:"gte=0,lte=60"`

	// Cumulative selects every level from 1 through Level instead of Level alone.
	Cumulative bool

	// MinSRSStage, when set, selects stages MinSRSStage..MaxSRSStage.
	MinSRSStage *int `validate:"omitempty,gte=0,lte=9"`
}

// Stage returns a pointer to s, for Params.MinSRSStage.
func Stage(s int) *int {
	return &s
}

// Validate checks the parameter bounds.
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid query params: %w", err)
	}
	return nil
}

// Values builds the query string parameters. It is pure: the same Params
// always yield the same Values.
func (p Params) Values() (url.Values, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	v := url.Values{}
	if p.SubjectType != "" {
		v.Set(ParamSubjectType, p.SubjectType)
	}
	if levels := LevelRange(p.Level, p.Cumulative); len(levels) > 0 {
		v.Set(ParamLevels, Join(levels))
	}
	if p.MinSRSStage != nil {
		v.Set(ParamSRSStages, Join(StageRange(*p.MinSRSStage)))
	}
	return v, nil
}

// LevelRange returns {1..level} when cumulative, {level} otherwise, and nil
// when level is 0 (no filter).
func LevelRange(level int, cumulative bool) []int {
	if level <= 0 {
		return nil
	}
	if !cumulative {
		return []int{level}
	}
	return Range(1, level)
}

// StageRange returns {min..MaxSRSStage}.
func StageRange(min int) []int {
	if min < MinSRSStage {
		min = MinSRSStage
	}
	return Range(min, MaxSRSStage)
}

// Range returns the ascending integers from lo through hi inclusive.
func Range(lo, hi int) []int {
	if hi < lo {
		return nil
	}
	out := make([]int, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, i)
	}
	return out
}

// Join renders ints as a comma-separated list.
func Join(ints []int) string {
	parts := make([]string, len(ints))
	for i, n := range ints {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
