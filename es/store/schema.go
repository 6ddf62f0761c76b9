package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// TableInfo describes a table as found in the database catalog.
type TableInfo struct {
	Columns       []string
	PrimaryKey    []string
	UniqueIndexes []string
}

// TableRequirement describes what the store needs from one table.
type TableRequirement struct {
	Name          string
	Columns       []string
	PrimaryKey    []string
	UniqueIndexes []string
}

// Requirements lists the tables, columns and unique indexes the store relies on.
func (t Tables) Requirements() []TableRequirement {
	return []TableRequirement{
		{
			Name:       t.Records,
			Columns:    []string{"id", "event_type", "data", "metadata"},
			PrimaryKey: []string{"id"},
		},
		{
			Name:          t.Streams,
			Columns:       []string{"id", "stream", "position", "event_id"},
			PrimaryKey:    []string{"id"},
			UniqueIndexes: []string{t.StreamPositionIndex(), t.StreamEventIndex()},
		},
		{
			Name:          t.Global,
			Columns:       []string{"id", "event_id"},
			PrimaryKey:    []string{"id"},
			UniqueIndexes: []string{t.GlobalEventIndex()},
		},
	}
}

// InspectFunc loads catalog information for a table.
// It returns found == false when the table does not exist.
type InspectFunc func(ctx context.Context, table string) (info TableInfo, found bool, err error)

// CheckSchema compares the catalog against the store's requirements and
// reports every problem it finds in a single error.
func CheckSchema(ctx context.Context, tables Tables, inspect InspectFunc) error {
	var problems []string
	for _, req := range tables.Requirements() {
		info, found, err := inspect(ctx, req.Name)
		if err != nil {
			return fmt.Errorf("failed to inspect table %s: %w", req.Name, err)
		}
		if !found {
			problems = append(problems, fmt.Sprintf("table %s is missing", req.Name))
			continue
		}

		for _, col := range req.Columns {
			if !containsFold(info.Columns, col) {
				problems = append(problems, fmt.Sprintf("table %s lacks column %s", req.Name, col))
			}
		}
		if !sameColumns(info.PrimaryKey, req.PrimaryKey) {
			problems = append(problems, fmt.Sprintf("table %s must have primary key (%s), found (%s)",
				req.Name, strings.Join(req.PrimaryKey, ", "), strings.Join(info.PrimaryKey, ", ")))
		}
		for _, idx := range req.UniqueIndexes {
			if !containsFold(info.UniqueIndexes, idx) {
				problems = append(problems, fmt.Sprintf("table %s lacks unique index %s", req.Name, idx))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

func containsFold(list []string, s string) bool {
	return slices.ContainsFunc(list, func(v string) bool {
		return strings.EqualFold(v, s)
	})
}

func sameColumns(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for _, col := range want {
		if !containsFold(got, col) {
			return false
		}
	}
	return true
}
