package katago

// Response is any message decoded from the engine's stdout. The concrete
// variants are Result, Resultless, TerminateAck, Version and CacheCleared;
// see DecodeResponse for how a line is matched to one of them.
type Response interface {
	// ResponseID returns the id of the action this response answers.
	ResponseID() string
}

// MoveInfo is one candidate move inside a Result.
type MoveInfo struct {
	Move           string    `json:"move"`
	Winrate        float64   `json:"winrate"`
	Visits         int       `json:"visits"`
	ScoreLead      float64   `json:"scoreLead"`
	ScoreSelfplay  float64   `json:"scoreSelfplay"`
	ScoreStdev     float64   `json:"scoreStdev"`
	Prior          float64   `json:"prior"`
	Utility        float64   `json:"utility"`
	LCB            float64   `json:"lcb"`
	UtilityLCB     float64   `json:"utilityLcb"`
	Order          int       `json:"order"`
	IsSymmetryOf   *string   `json:"isSymmetryOf,omitempty"`
	PV             []string  `json:"pv"`
	PVVisits       []int     `json:"pvVisits,omitzero"`
	PVEdgeVisits   []int     `json:"pvEdgeVisits,omitzero"`
	Ownership      []float64 `json:"ownership,omitzero"`
	OwnershipStdev []float64 `json:"ownershipStdev,omitzero"`
}

// RootInfo is the engine's analysis of the root position itself.
type RootInfo struct {
	Winrate       float64  `json:"winrate"`
	ScoreLead     float64  `json:"scoreLead"`
	ScoreSelfplay float64  `json:"scoreSelfplay"`
	Utility       *float64 `json:"utility,omitempty"`
	Visits        int      `json:"visits"`
	ThisHash      *string  `json:"thisHash,omitempty"`
	SymHash       *string  `json:"symHash,omitempty"`
	CurrentPlayer *Player  `json:"currentPlayer,omitempty"`
}

// Result carries analysis data for one turn of a query. IsDuringSearch is
// true for intermediate reports requested via reportDuringSearchEvery and
// false on the final report for that turn.
type Result struct {
	ID             string     `json:"id"`
	IsDuringSearch bool       `json:"isDuringSearch"`
	TurnNumber     *int       `json:"turnNumber,omitempty"`
	MoveInfos      []MoveInfo `json:"moveInfos"`
	RootInfo       *RootInfo  `json:"rootInfo,omitempty"`
	Ownership      []float64  `json:"ownership,omitzero"`
	OwnershipStdev []float64  `json:"ownershipStdev,omitzero"`
	Policy         []float64  `json:"policy,omitzero"`
}

func (r *Result) ResponseID() string { return r.ID }

// Resultless is a progress heartbeat with no analysis payload.
type Resultless struct {
	ID             string `json:"id"`
	IsDuringSearch bool   `json:"isDuringSearch"`
	TurnNumber     int    `json:"turnNumber"`
	NoResults      bool   `json:"noResults"`
}

func (r *Resultless) ResponseID() string { return r.ID }

// TerminateAck acknowledges a Terminate action. ID is the id of the
// terminate action itself; TerminateID names the cancelled query.
type TerminateAck struct {
	ID          string `json:"id"`
	Action      string `json:"action"`
	TurnNumber  *int   `json:"turnNumber,omitempty"`
	TerminateID string `json:"terminateId"`
}

func (r *TerminateAck) ResponseID() string { return r.ID }

// GitHashOmitted is what engines built without git metadata report in place
// of a real hash.
const GitHashOmitted = "<omitted>"

// Version identifies the engine.
type Version struct {
	ID      string `json:"id"`
	Action  string `json:"action"`
	GitHash string `json:"gitHash"`
	Version string `json:"version"`
}

func (r *Version) ResponseID() string { return r.ID }

// HasGitHash reports whether GitHash is a real hash rather than empty or
// the omitted placeholder.
func (r *Version) HasGitHash() bool {
	return r.GitHash != "" && r.GitHash != GitHashOmitted
}

// CacheCleared acknowledges a ClearCache action.
type CacheCleared struct {
	ID     string `json:"id"`
	Action string `json:"action"`
}

func (r *CacheCleared) ResponseID() string { return r.ID }
