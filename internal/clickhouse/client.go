package clickhouse

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/Billy-Davies-2/draftkit/internal/models"
)

// Options configures the connection and the projection tables.
type Options struct {
	Addr      string
	Database  string
	Username  string
	Password  string
	Table     string // player projections
	MetaTable string // defaults to Table + "_meta"
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Client reads projection data from ClickHouse. It satisfies loader.Source.
type Client struct {
	conn      driver.Conn
	table     string
	metaTable string
}

// NewClient connects and pings ClickHouse.
func NewClient(opts Options) (*Client, error) {
	if opts.MetaTable == "" {
		opts.MetaTable = opts.Table + "_meta"
	}
	for _, t := range []string{opts.Table, opts.MetaTable} {
		if !identRe.MatchString(t) {
			return nil, fmt.Errorf("invalid ClickHouse table name %q", t)
		}
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		DialTimeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping ClickHouse: %w", err)
	}

	return &Client{conn: conn, table: opts.Table, metaTable: opts.MetaTable}, nil
}

func playersQuery(table string) string {
	return fmt.Sprintf(`
		SELECT
			player_id, name, pos, tm,
			points, vorp, pos_rank, overall_rank, tier, repl_pts,
			bye, ppg, gp, stdev, p10_share, p15_share, p20_share,
			round_est, pick_in_round, source
		FROM %s
		ORDER BY overall_rank`, table)
}

func metaQuery(table string) string {
	return fmt.Sprintf(`
		SELECT
			generated_at, target_year, lookback_years, blend,
			per_game, min_games, schema_version
		FROM %s
		ORDER BY generated_at DESC
		LIMIT 1`, table)
}

// playerRow mirrors the projections table, nullable columns as pointers.
type playerRow struct {
	PlayerID    string
	Name        string
	Pos         string
	Team        string
	Points      float64
	VORP        float64
	PosRank     int32
	OverallRank int32
	Tier        int32
	ReplPts     float64
	Bye         *int32
	PPG         *float64
	GP          *int32
	Stdev       *float64
	P10Share    *float64
	P15Share    *float64
	P20Share    *float64
	RoundEst    *int32
	PickInRound *int32
	Source      string
}

func (r *playerRow) dest() []any {
	return []any{
		&r.PlayerID, &r.Name, &r.Pos, &r.Team,
		&r.Points, &r.VORP, &r.PosRank, &r.OverallRank, &r.Tier, &r.ReplPts,
		&r.Bye, &r.PPG, &r.GP, &r.Stdev, &r.P10Share, &r.P15Share, &r.P20Share,
		&r.RoundEst, &r.PickInRound, &r.Source,
	}
}

func intOrNil(v *int32) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

func (r playerRow) player() models.Player {
	return models.Player{
		PlayerID:    r.PlayerID,
		Name:        r.Name,
		Pos:         models.Position(r.Pos),
		Team:        r.Team,
		Points:      r.Points,
		VORP:        r.VORP,
		PosRank:     int(r.PosRank),
		OverallRank: int(r.OverallRank),
		Tier:        int(r.Tier),
		ReplPts:     r.ReplPts,
		Bye:         intOrNil(r.Bye),
		PPG:         r.PPG,
		GP:          intOrNil(r.GP),
		Stdev:       r.Stdev,
		P10Share:    r.P10Share,
		P15Share:    r.P15Share,
		P20Share:    r.P20Share,
		RoundEst:    intOrNil(r.RoundEst),
		PickInRound: intOrNil(r.PickInRound),
		Source:      r.Source,
	}
}

// Players returns every projected player in rank order.
func (c *Client) Players(ctx context.Context) ([]models.Player, error) {
	rows, err := c.conn.Query(ctx, playersQuery(c.table))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c.table, err)
	}
	defer rows.Close()

	players := []models.Player{}
	for rows.Next() {
		var r playerRow
		if err := rows.Scan(r.dest()...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", c.table, err)
		}
		players = append(players, r.player())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return players, nil
}

// Meta returns the most recent generation metadata.
func (c *Client) Meta(ctx context.Context) (models.Meta, error) {
	var (
		generatedAt time.Time
		targetYear  int32
		lookback    []int32
		blend       []float64
		perGame     uint8
		minGames    int32
		schema      string
	)
	row := c.conn.QueryRow(ctx, metaQuery(c.metaTable))
	if err := row.Scan(&generatedAt, &targetYear, &lookback, &blend, &perGame, &minGames, &schema); err != nil {
		return models.Meta{}, fmt.Errorf("query %s: %w", c.metaTable, err)
	}

	year := int(targetYear)
	games := int(minGames)
	pg := perGame != 0
	meta := models.Meta{
		GeneratedAt:   generatedAt.UTC().Format(time.RFC3339),
		TargetYear:    &year,
		Blend:         blend,
		PerGame:       &pg,
		MinGames:      &games,
		SchemaVersion: schema,
	}
	for _, y := range lookback {
		meta.LookbackYears = append(meta.LookbackYears, int(y))
	}
	return meta, nil
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Close closes the ClickHouse connection
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
