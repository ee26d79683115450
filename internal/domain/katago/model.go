// Package katago holds the message model and wire codec for the KataGo
// analysis engine protocol: one JSON object per line on each of the engine's
// stdin and stdout pipes.
package katago

import (
	"encoding/json"
	"fmt"

	kataerr "kata_analysis/internal/errors"
)

// Player is the side to move, encoded as the engine's single-letter code.
type Player string

const (
	PlayerBlack Player = "B"
	PlayerWhite Player = "W"
)

// Rules selects one of the engine's named rule presets. Custom rule maps are
// not supported, only the shorthand names.
type Rules string

const (
	RulesTrompTaylor  Rules = "tromp-taylor"
	RulesChinese      Rules = "chinese"
	RulesChineseOGS   Rules = "chinese-ogs"
	RulesChineseKGS   Rules = "chinese-kgs"
	RulesJapanese     Rules = "japanese"
	RulesKorean       Rules = "korean"
	RulesStoneScoring Rules = "stone-scoring"
	RulesAGA          Rules = "aga"
	RulesBGA          Rules = "bga"
	RulesNewZealand   Rules = "new-zealand"
	RulesAGAButton    Rules = "aga-button"
)

// WhiteHandicapBonus is the komi bonus white receives per handicap stone,
// encoded as the engine's literal strings.
type WhiteHandicapBonus string

const (
	HandicapBonusZero      WhiteHandicapBonus = "0"
	HandicapBonusN         WhiteHandicapBonus = "N"
	HandicapBonusNMinusOne WhiteHandicapBonus = "N-1"
)

// Move is a (player, coordinate) pair. On the wire it is a two-element
// array, e.g. ["B","Q16"].
type Move struct {
	Player   Player
	Location string
}

func (m Move) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{string(m.Player), m.Location})
}

func (m *Move) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("move must be a [player, coordinate] pair: %w", err)
	}
	m.Player = Player(pair[0])
	m.Location = pair[1]
	return nil
}

// MoveGroup restricts the moves the engine may consider for one player up to
// a given search depth. Used by the avoidMoves and allowMoves query fields.
type MoveGroup struct {
	Player     Player   `json:"player"`
	Moves      []string `json:"moves"`
	UntilDepth int      `json:"untilDepth"`
}

// Query is one analysis request. It is immutable once sent; the engine
// correlates every later response to it purely by ID. Optional fields are
// pointers (or nil slices) so that "absent" never collapses into a business
// value: a nil Komi is not komi 0.
//
// Slice and map fields use omitzero, not omitempty: a present-but-empty
// collection must still reach the engine.
type Query struct {
	ID                         string              `json:"id"`
	InitialStones              []Move              `json:"initialStones,omitzero"`
	Moves                      []Move              `json:"moves"`
	Rules                      Rules               `json:"rules"`
	InitialPlayer              *Player             `json:"initialPlayer,omitempty"`
	Komi                       *float64            `json:"komi,omitempty"`
	WhiteHandicapBonus         *WhiteHandicapBonus `json:"whiteHandicapBonus,omitempty"`
	BoardXSize                 int                 `json:"boardXSize"`
	BoardYSize                 int                 `json:"boardYSize"`
	AnalyzeTurns               []int               `json:"analyzeTurns,omitzero"`
	MaxVisits                  *int                `json:"maxVisits,omitempty"`
	RootPolicyTemperature      *float64            `json:"rootPolicyTemperature,omitempty"`
	RootFpuReductionMax        *float64            `json:"rootFpuReductionMax,omitempty"`
	AnalysisPVLen              *int                `json:"analysisPVLen,omitempty"`
	IncludeOwnership           *bool               `json:"includeOwnership,omitempty"`
	IncludeOwnershipStdev      *bool               `json:"includeOwnershipStdev,omitempty"`
	IncludeMovesOwnership      *bool               `json:"includeMovesOwnership,omitempty"`
	IncludeMovesOwnershipStdev *bool               `json:"includeMovesOwnershipStdev,omitempty"`
	IncludePolicy              *bool               `json:"includePolicy,omitempty"`
	IncludePVVisits            *bool               `json:"includePVVisits,omitempty"`
	AvoidMoves                 []MoveGroup         `json:"avoidMoves,omitzero"`
	AllowMoves                 []MoveGroup         `json:"allowMoves,omitzero"`
	OverrideSettings           map[string]any      `json:"overrideSettings,omitzero"`
	ReportDuringSearchEvery    *float64            `json:"reportDuringSearchEvery,omitempty"`
	Priority                   *int                `json:"priority,omitempty"`
	Priorities                 []int               `json:"priorities,omitzero"`
}

// QueryBuilder assembles a Query field by field. Required fields (id, moves,
// rules, board sizes) are checked in Build; everything else stays absent
// unless set.
type QueryBuilder struct {
	q        Query
	hasID    bool
	hasMoves bool
	hasRules bool
	hasX     bool
	hasY     bool
}

func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{}
}

func (b *QueryBuilder) ID(id string) *QueryBuilder {
	b.q.ID = id
	b.hasID = true
	return b
}

func (b *QueryBuilder) InitialStones(stones []Move) *QueryBuilder {
	if stones == nil {
		stones = []Move{}
	}
	b.q.InitialStones = stones
	return b
}

func (b *QueryBuilder) Moves(moves []Move) *QueryBuilder {
	if moves == nil {
		moves = []Move{}
	}
	b.q.Moves = moves
	b.hasMoves = true
	return b
}

func (b *QueryBuilder) Rules(rules Rules) *QueryBuilder {
	b.q.Rules = rules
	b.hasRules = true
	return b
}

func (b *QueryBuilder) InitialPlayer(p Player) *QueryBuilder {
	b.q.InitialPlayer = &p
	return b
}

func (b *QueryBuilder) Komi(komi float64) *QueryBuilder {
	b.q.Komi = &komi
	return b
}

func (b *QueryBuilder) WhiteHandicapBonus(bonus WhiteHandicapBonus) *QueryBuilder {
	b.q.WhiteHandicapBonus = &bonus
	return b
}

func (b *QueryBuilder) BoardXSize(x int) *QueryBuilder {
	b.q.BoardXSize = x
	b.hasX = true
	return b
}

func (b *QueryBuilder) BoardYSize(y int) *QueryBuilder {
	b.q.BoardYSize = y
	b.hasY = true
	return b
}

func (b *QueryBuilder) BoardSize(n int) *QueryBuilder {
	return b.BoardXSize(n).BoardYSize(n)
}

func (b *QueryBuilder) AnalyzeTurns(turns []int) *QueryBuilder {
	if turns == nil {
		turns = []int{}
	}
	b.q.AnalyzeTurns = turns
	return b
}

func (b *QueryBuilder) MaxVisits(n int) *QueryBuilder {
	b.q.MaxVisits = &n
	return b
}

func (b *QueryBuilder) RootPolicyTemperature(t float64) *QueryBuilder {
	b.q.RootPolicyTemperature = &t
	return b
}

func (b *QueryBuilder) RootFpuReductionMax(r float64) *QueryBuilder {
	b.q.RootFpuReductionMax = &r
	return b
}

func (b *QueryBuilder) AnalysisPVLen(n int) *QueryBuilder {
	b.q.AnalysisPVLen = &n
	return b
}

func (b *QueryBuilder) IncludeOwnership(v bool) *QueryBuilder {
	b.q.IncludeOwnership = &v
	return b
}

func (b *QueryBuilder) IncludeOwnershipStdev(v bool) *QueryBuilder {
	b.q.IncludeOwnershipStdev = &v
	return b
}

func (b *QueryBuilder) IncludeMovesOwnership(v bool) *QueryBuilder {
	b.q.IncludeMovesOwnership = &v
	return b
}

func (b *QueryBuilder) IncludeMovesOwnershipStdev(v bool) *QueryBuilder {
	b.q.IncludeMovesOwnershipStdev = &v
	return b
}

func (b *QueryBuilder) IncludePolicy(v bool) *QueryBuilder {
	b.q.IncludePolicy = &v
	return b
}

func (b *QueryBuilder) IncludePVVisits(v bool) *QueryBuilder {
	b.q.IncludePVVisits = &v
	return b
}

func (b *QueryBuilder) AvoidMoves(groups []MoveGroup) *QueryBuilder {
	if groups == nil {
		groups = []MoveGroup{}
	}
	b.q.AvoidMoves = groups
	return b
}

// AllowMoves takes a single group: the engine accepts at most one.
func (b *QueryBuilder) AllowMoves(group MoveGroup) *QueryBuilder {
	b.q.AllowMoves = []MoveGroup{group}
	return b
}

func (b *QueryBuilder) OverrideSettings(settings map[string]any) *QueryBuilder {
	if settings == nil {
		settings = map[string]any{}
	}
	b.q.OverrideSettings = settings
	return b
}

func (b *QueryBuilder) ReportDuringSearchEvery(seconds float64) *QueryBuilder {
	b.q.ReportDuringSearchEvery = &seconds
	return b
}

func (b *QueryBuilder) Priority(p int) *QueryBuilder {
	b.q.Priority = &p
	return b
}

func (b *QueryBuilder) Priorities(ps []int) *QueryBuilder {
	if ps == nil {
		ps = []int{}
	}
	b.q.Priorities = ps
	return b
}

// Build validates the required fields and returns the finished query. A
// missing required field fails here, not at encode time.
func (b *QueryBuilder) Build() (*Query, error) {
	switch {
	case !b.hasID || b.q.ID == "":
		return nil, fmt.Errorf("%w: id", kataerr.ErrMissingField)
	case !b.hasMoves:
		return nil, fmt.Errorf("%w: moves", kataerr.ErrMissingField)
	case !b.hasRules:
		return nil, fmt.Errorf("%w: rules", kataerr.ErrMissingField)
	case !b.hasX:
		return nil, fmt.Errorf("%w: boardXSize", kataerr.ErrMissingField)
	case !b.hasY:
		return nil, fmt.Errorf("%w: boardYSize", kataerr.ErrMissingField)
	}
	if b.q.BoardXSize <= 0 || b.q.BoardYSize <= 0 {
		return nil, fmt.Errorf("board sizes must be positive, got %dx%d", b.q.BoardXSize, b.q.BoardYSize)
	}
	q := b.q
	return &q, nil
}
