package seasondata

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	SkillFile      = "epm_data.csv"
	SalaryFile     = "salary_data.csv"
	MetricsFile    = "e_mets.csv"
	UsageFile      = "usage_data.csv"
	TeamFile       = "team_possession_data.csv"
	FreeAgentsFile = "FreeAgents.csv"
)

// CSVSource reads season tables from <Dir>/<season>/.
type CSVSource struct {
	Dir    string
	logger *logrus.Logger
}

func NewCSVSource(dir string, logger *logrus.Logger) *CSVSource {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CSVSource{Dir: dir, logger: logger}
}

func (s *CSVSource) Load(ctx context.Context, season string) (*Tables, error) {
	if season == "" || strings.ContainsAny(season, `/\`) || season == "." || season == ".." {
		return nil, fmt.Errorf("invalid season %q", season)
	}
	dir := filepath.Join(s.Dir, season)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrSeasonNotFound, season)
	}

	tables := &Tables{Season: season}
	steps := []struct {
		file     string
		optional bool
		parse    func(*csvTable) error
	}{
		{SkillFile, false, func(t *csvTable) error { return parseSkill(t, tables) }},
		{SalaryFile, false, func(t *csvTable) error { return parseSalaries(t, season, tables) }},
		{MetricsFile, false, func(t *csvTable) error { return parseMetrics(t, tables) }},
		{UsageFile, false, func(t *csvTable) error { return parseUsage(t, tables) }},
		{TeamFile, false, func(t *csvTable) error { return parseTeams(t, tables) }},
		{FreeAgentsFile, true, func(t *csvTable) error { return parseFreeAgents(t, tables) }},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		table, err := readCSV(filepath.Join(dir, step.file))
		if err != nil {
			if step.optional && errors.Is(err, fs.ErrNotExist) {
				s.logger.WithField("file", step.file).Debug("Optional season file not present")
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", step.file, err)
		}
		if err := step.parse(table); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", step.file, err)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"season":      season,
		"skill_rows":  len(tables.Skill),
		"salary_rows": len(tables.Salaries),
		"usage_rows":  len(tables.Usage),
		"team_rows":   len(tables.Teams),
		"free_agents": len(tables.FreeAgents),
	}).Info("Loaded season tables from CSV")

	return tables, nil
}

type csvTable struct {
	columns map[string]int
	records [][]string
}

func readCSV(path string) (*csvTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty file")
		}
		return nil, err
	}
	t := &csvTable{columns: make(map[string]int, len(header))}
	for i, name := range header {
		t.columns[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	t.records, err = r.ReadAll()
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (t *csvTable) require(names ...string) error {
	for _, name := range names {
		if _, ok := t.columns[name]; !ok {
			return fmt.Errorf("missing column %q", name)
		}
	}
	return nil
}

// get returns the trimmed cell, or "" when the record is short.
func (t *csvTable) get(record []string, column string) string {
	i, ok := t.columns[column]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func parseSkill(t *csvTable, tables *Tables) error {
	if err := t.require("name", "epm"); err != nil {
		return err
	}
	for n, rec := range t.records {
		epm, ok, err := ParseCount(t.get(rec, "epm"))
		if err != nil {
			return fmt.Errorf("row %d: %w", n+2, err)
		}
		if !ok {
			continue
		}
		id, _ := strconv.Atoi(t.get(rec, "nba_id"))
		tables.Skill = append(tables.Skill, SkillRow{NBAID: id, Name: t.get(rec, "name"), EPM: epm})
	}
	return nil
}

// parseSalaries reads the column named after the season, falling back to "Salary".
func parseSalaries(t *csvTable, season string, tables *Tables) error {
	column := season
	if _, ok := t.columns[column]; !ok {
		column = "Salary"
	}
	if err := t.require("Player", column); err != nil {
		return fmt.Errorf("%w (expected a %q column)", err, season)
	}
	for n, rec := range t.records {
		salary, ok, err := ParseDollars(t.get(rec, column))
		if err != nil {
			return fmt.Errorf("row %d: %w", n+2, err)
		}
		if !ok {
			continue
		}
		tables.Salaries = append(tables.Salaries, SalaryRow{Player: t.get(rec, "Player"), Salary: salary})
	}
	return nil
}

func parseMetrics(t *csvTable, tables *Tables) error {
	if err := t.require("PLAYER_NAME", "E_OFF_RATING", "E_DEF_RATING"); err != nil {
		return err
	}
	for n, rec := range t.records {
		off, okOff, err := ParseCount(t.get(rec, "E_OFF_RATING"))
		if err != nil {
			return fmt.Errorf("row %d: %w", n+2, err)
		}
		def, okDef, err := ParseCount(t.get(rec, "E_DEF_RATING"))
		if err != nil {
			return fmt.Errorf("row %d: %w", n+2, err)
		}
		if !okOff || !okDef {
			continue
		}
		tables.Metrics = append(tables.Metrics, MetricsRow{
			PlayerName: t.get(rec, "PLAYER_NAME"),
			OffRating:  off,
			DefRating:  def,
		})
	}
	return nil
}

func parseUsage(t *csvTable, tables *Tables) error {
	if err := t.require("PLAYER", "POSS", "GP"); err != nil {
		return err
	}
	for n, rec := range t.records {
		poss, _, err := ParseCount(t.get(rec, "POSS"))
		if err != nil {
			return fmt.Errorf("row %d: %w", n+2, err)
		}
		gp, _, err := ParseCount(t.get(rec, "GP"))
		if err != nil {
			return fmt.Errorf("row %d: %w", n+2, err)
		}
		tables.Usage = append(tables.Usage, UsageRow{Player: t.get(rec, "PLAYER"), Possessions: poss, GamesPlayed: gp})
	}
	return nil
}

// parseTeams keeps incomplete rows; missing cells become NaN and are
// dropped by the baseline calculation.
func parseTeams(t *csvTable, tables *Tables) error {
	if err := t.require("POSS", "GP"); err != nil {
		return err
	}
	for n, rec := range t.records {
		poss, _, err := ParseCount(t.get(rec, "POSS"))
		if err != nil {
			return fmt.Errorf("row %d: %w", n+2, err)
		}
		gp, _, err := ParseCount(t.get(rec, "GP"))
		if err != nil {
			return fmt.Errorf("row %d: %w", n+2, err)
		}
		tables.Teams = append(tables.Teams, TeamRow{Team: t.get(rec, "TEAM"), Possessions: poss, GamesPlayed: gp})
	}
	return nil
}

func parseFreeAgents(t *csvTable, tables *Tables) error {
	if err := t.require("Player"); err != nil {
		return err
	}
	for _, rec := range t.records {
		if name := t.get(rec, "Player"); name != "" {
			tables.FreeAgents = append(tables.FreeAgents, name)
		}
	}
	return nil
}
