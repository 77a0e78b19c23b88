package seasondata

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PlayerSkill represents a player's EPM estimate for a season
type PlayerSkill struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Season    string    `gorm:"index;not null" json:"season"`
	NBAID     int       `gorm:"column:nba_id" json:"nba_id"`
	Name      string    `gorm:"not null" json:"name"`
	EPM       float64   `gorm:"column:epm;not null" json:"epm"`
	CreatedAt time.Time `json:"created_at"`
}

func (PlayerSkill) TableName() string {
	return "season_player_skill"
}

// PlayerSalary represents a player's contract amount in dollars
type PlayerSalary struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Season    string    `gorm:"index;not null" json:"season"`
	Player    string    `gorm:"not null" json:"player"`
	Salary    *float64  `json:"salary"`
	CreatedAt time.Time `json:"created_at"`
}

func (PlayerSalary) TableName() string {
	return "season_player_salaries"
}

// PlayerMetrics represents estimated offensive and defensive ratings
type PlayerMetrics struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Season     string    `gorm:"index;not null" json:"season"`
	PlayerName string    `gorm:"not null" json:"player_name"`
	OffRating  float64   `gorm:"column:e_off_rating" json:"e_off_rating"`
	DefRating  float64   `gorm:"column:e_def_rating" json:"e_def_rating"`
	CreatedAt  time.Time `json:"created_at"`
}

func (PlayerMetrics) TableName() string {
	return "season_player_metrics"
}

// PlayerUsage represents a player's season possessions and games played
type PlayerUsage struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Season      string    `gorm:"index;not null" json:"season"`
	Player      string    `gorm:"not null" json:"player"`
	Possessions *float64  `gorm:"column:poss" json:"poss"`
	GamesPlayed *float64  `gorm:"column:gp" json:"gp"`
	CreatedAt   time.Time `json:"created_at"`
}

func (PlayerUsage) TableName() string {
	return "season_player_usage"
}

// TeamPossessions represents a team's season possessions and games played
type TeamPossessions struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Season      string    `gorm:"index;not null" json:"season"`
	Team        string    `gorm:"not null" json:"team"`
	Possessions *float64  `gorm:"column:poss" json:"poss"`
	GamesPlayed *float64  `gorm:"column:gp" json:"gp"`
	CreatedAt   time.Time `json:"created_at"`
}

func (TeamPossessions) TableName() string {
	return "season_team_possessions"
}

// FreeAgent marks a player available on the open market for a season
type FreeAgent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Season    string    `gorm:"index;not null" json:"season"`
	Player    string    `gorm:"not null" json:"player"`
	CreatedAt time.Time `json:"created_at"`
}

func (FreeAgent) TableName() string {
	return "season_free_agents"
}

// Models lists every table DBSource reads, for migrations.
func Models() []interface{} {
	return []interface{}{
		&PlayerSkill{},
		&PlayerSalary{},
		&PlayerMetrics{},
		&PlayerUsage{},
		&TeamPossessions{},
		&FreeAgent{},
	}
}

// DBSource reads season tables from Postgres.
type DBSource struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewDBSource(db *gorm.DB, logger *logrus.Logger) *DBSource {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DBSource{db: db, logger: logger}
}

// Migrate creates or updates the season tables.
func (s *DBSource) Migrate() error {
	if err := s.db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate season tables: %w", err)
	}
	return nil
}

func (s *DBSource) Load(ctx context.Context, season string) (*Tables, error) {
	db := s.db.WithContext(ctx).Where("season = ?", season).Order("id").Session(&gorm.Session{})

	var skills []PlayerSkill
	if err := db.Find(&skills).Error; err != nil {
		return nil, fmt.Errorf("failed to load skill ratings: %w", err)
	}
	if len(skills) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSeasonNotFound, season)
	}

	var salaries []PlayerSalary
	if err := db.Find(&salaries).Error; err != nil {
		return nil, fmt.Errorf("failed to load salaries: %w", err)
	}
	var metrics []PlayerMetrics
	if err := db.Find(&metrics).Error; err != nil {
		return nil, fmt.Errorf("failed to load estimated metrics: %w", err)
	}
	var usage []PlayerUsage
	if err := db.Find(&usage).Error; err != nil {
		return nil, fmt.Errorf("failed to load usage: %w", err)
	}
	var teams []TeamPossessions
	if err := db.Find(&teams).Error; err != nil {
		return nil, fmt.Errorf("failed to load team possessions: %w", err)
	}
	var freeAgents []FreeAgent
	if err := db.Find(&freeAgents).Error; err != nil {
		return nil, fmt.Errorf("failed to load free agents: %w", err)
	}

	tables := tablesFromModels(season, skills, salaries, metrics, usage, teams, freeAgents)

	s.logger.WithFields(logrus.Fields{
		"season":      season,
		"skill_rows":  len(tables.Skill),
		"salary_rows": len(tables.Salaries),
		"usage_rows":  len(tables.Usage),
		"team_rows":   len(tables.Teams),
		"free_agents": len(tables.FreeAgents),
	}).Info("Loaded season tables from database")

	return tables, nil
}

func tablesFromModels(
	season string,
	skills []PlayerSkill,
	salaries []PlayerSalary,
	metrics []PlayerMetrics,
	usage []PlayerUsage,
	teams []TeamPossessions,
	freeAgents []FreeAgent,
) *Tables {
	tables := &Tables{Season: season}
	for _, s := range skills {
		tables.Skill = append(tables.Skill, SkillRow{NBAID: s.NBAID, Name: s.Name, EPM: s.EPM})
	}
	for _, s := range salaries {
		if s.Salary == nil {
			continue
		}
		tables.Salaries = append(tables.Salaries, SalaryRow{Player: s.Player, Salary: *s.Salary})
	}
	for _, m := range metrics {
		tables.Metrics = append(tables.Metrics, MetricsRow{PlayerName: m.PlayerName, OffRating: m.OffRating, DefRating: m.DefRating})
	}
	for _, u := range usage {
		tables.Usage = append(tables.Usage, UsageRow{
			Player:      u.Player,
			Possessions: valueOrNaN(u.Possessions),
			GamesPlayed: valueOrNaN(u.GamesPlayed),
		})
	}
	for _, t := range teams {
		tables.Teams = append(tables.Teams, TeamRow{
			Team:        t.Team,
			Possessions: valueOrNaN(t.Possessions),
			GamesPlayed: valueOrNaN(t.GamesPlayed),
		})
	}
	for _, f := range freeAgents {
		tables.FreeAgents = append(tables.FreeAgents, f.Player)
	}
	return tables
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
