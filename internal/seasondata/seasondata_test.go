package seasondata

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSeason(t *testing.T, root, season string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(root, season)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func sampleFiles() map[string]string {
	return map[string]string{
		SkillFile: "nba_id,name,epm\n" +
			"1,Nikola Jokic,9.1\n" +
			"2,Luka Doncic,7.4\n" +
			"3,Bench Guy,\n",
		SalaryFile: "Player,2023-24,2024-25\n" +
			"Nikola Jokić,\"$47,607,350\",\"$51,415,938\"\n" +
			"Luka Dončić,\"$40,064,220\",\n" +
			"Unsigned Guy,,\"$1,000,000\"\n",
		MetricsFile: "PLAYER_NAME,E_OFF_RATING,E_DEF_RATING\n" +
			"Nikola Jokic,121.5,110.2\n" +
			"Luka Doncic,118.9,113.0\n",
		UsageFile: "PLAYER,POSS,GP\n" +
			"Nikola Jokic,\"5,831\",79\n" +
			"Luka Doncic,\"5,412\",70\n",
		TeamFile: "TEAM,POSS,GP\n" +
			"Denver Nuggets,\"7,965\",82\n" +
			"Dallas Mavericks,\"8,101\",82\n" +
			"Expansion Team,,\n",
		FreeAgentsFile: "Player\nLuka Dončić\n",
	}
}

func TestParseDollars(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    float64
		ok      bool
		wantErr bool
	}{
		{"dollar with commas", "$12,345,678", 12345678, true, false},
		{"plain number", "1000", 1000, true, false},
		{"surrounding spaces", "  $900 ", 900, true, false},
		{"blank", "", 0, false, false},
		{"nan marker", "NaN", 0, false, false},
		{"garbage", "$abc", 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := ParseDollars(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			} else {
				assert.True(t, math.IsNaN(got))
			}
		})
	}
}

func TestCSVSourceLoad(t *testing.T) {
	root := t.TempDir()
	writeSeason(t, root, "2023-24", sampleFiles())

	src := NewCSVSource(root, logrus.New())
	tables, err := src.Load(context.Background(), "2023-24")
	require.NoError(t, err)

	assert.Equal(t, "2023-24", tables.Season)
	require.Len(t, tables.Skill, 2, "rows without an EPM value are skipped")
	assert.Equal(t, SkillRow{NBAID: 1, Name: "Nikola Jokic", EPM: 9.1}, tables.Skill[0])

	require.Len(t, tables.Salaries, 2, "blank salary cells are dropped")
	assert.Equal(t, "Nikola Jokić", tables.Salaries[0].Player)
	assert.Equal(t, 47607350.0, tables.Salaries[0].Salary)
	assert.Equal(t, 40064220.0, tables.Salaries[1].Salary)

	require.Len(t, tables.Metrics, 2)
	assert.Equal(t, 121.5, tables.Metrics[0].OffRating)
	assert.Equal(t, 110.2, tables.Metrics[0].DefRating)

	require.Len(t, tables.Usage, 2)
	assert.Equal(t, 5831.0, tables.Usage[0].Possessions)
	assert.Equal(t, 79.0, tables.Usage[0].GamesPlayed)

	require.Len(t, tables.Teams, 3)
	assert.True(t, tables.Teams[0].Complete())
	assert.Equal(t, 7965.0, tables.Teams[0].Possessions)
	assert.False(t, tables.Teams[2].Complete(), "missing cells are kept as NaN")

	assert.Equal(t, []string{"Luka Dončić"}, tables.FreeAgents)
}

func TestCSVSourceSalaryColumnFollowsSeason(t *testing.T) {
	root := t.TempDir()
	writeSeason(t, root, "2024-25", sampleFiles())

	tables, err := NewCSVSource(root, logrus.New()).Load(context.Background(), "2024-25")
	require.NoError(t, err)

	require.Len(t, tables.Salaries, 2)
	assert.Equal(t, "Nikola Jokić", tables.Salaries[0].Player)
	assert.Equal(t, 51415938.0, tables.Salaries[0].Salary)
	assert.Equal(t, "Unsigned Guy", tables.Salaries[1].Player)
}

func TestCSVSourceFreeAgentsOptional(t *testing.T) {
	root := t.TempDir()
	files := sampleFiles()
	delete(files, FreeAgentsFile)
	writeSeason(t, root, "2023-24", files)

	tables, err := NewCSVSource(root, logrus.New()).Load(context.Background(), "2023-24")
	require.NoError(t, err)
	assert.Empty(t, tables.FreeAgents)
}

func TestCSVSourceErrors(t *testing.T) {
	root := t.TempDir()
	src := NewCSVSource(root, logrus.New())

	t.Run("unknown season", func(t *testing.T) {
		_, err := src.Load(context.Background(), "1999-00")
		assert.ErrorIs(t, err, ErrSeasonNotFound)
	})

	t.Run("path traversal", func(t *testing.T) {
		_, err := src.Load(context.Background(), "../etc")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrSeasonNotFound)
	})

	t.Run("missing required file", func(t *testing.T) {
		files := sampleFiles()
		delete(files, UsageFile)
		writeSeason(t, root, "2022-23", files)

		_, err := src.Load(context.Background(), "2022-23")
		require.Error(t, err)
		assert.Contains(t, err.Error(), UsageFile)
	})

	t.Run("missing column", func(t *testing.T) {
		files := sampleFiles()
		files[MetricsFile] = "PLAYER_NAME,E_OFF_RATING\nNikola Jokic,121.5\n"
		writeSeason(t, root, "2021-22", files)

		_, err := src.Load(context.Background(), "2021-22")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "E_DEF_RATING")
	})

	t.Run("cancelled context", func(t *testing.T) {
		writeSeason(t, root, "2020-21", sampleFiles())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := src.Load(ctx, "2020-21")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestTablesFromModels(t *testing.T) {
	poss := 7965.0
	gp := 82.0
	salary := 1000000.0

	tables := tablesFromModels("2023-24",
		[]PlayerSkill{{Name: "A", EPM: 1.5, NBAID: 7}},
		[]PlayerSalary{{Player: "A", Salary: &salary}, {Player: "B"}},
		[]PlayerMetrics{{PlayerName: "A", OffRating: 110, DefRating: 108}},
		[]PlayerUsage{{Player: "A", Possessions: &poss}},
		[]TeamPossessions{{Team: "DEN", Possessions: &poss, GamesPlayed: &gp}, {Team: "NEW"}},
		[]FreeAgent{{Player: "A"}},
	)

	assert.Equal(t, []SkillRow{{NBAID: 7, Name: "A", EPM: 1.5}}, tables.Skill)
	assert.Equal(t, []SalaryRow{{Player: "A", Salary: 1000000}}, tables.Salaries)
	assert.Equal(t, 110.0, tables.Metrics[0].OffRating)
	assert.Equal(t, poss, tables.Usage[0].Possessions)
	assert.True(t, math.IsNaN(tables.Usage[0].GamesPlayed))
	assert.True(t, tables.Teams[0].Complete())
	assert.False(t, tables.Teams[1].Complete())
	assert.Equal(t, []string{"A"}, tables.FreeAgents)
}
