package katago

// Fixed discriminator strings for the non-query actions and their
// acknowledgments.
const (
	ActionQueryVersion = "query_version"
	ActionClearCache   = "clear_cache"
	ActionTerminate    = "terminate"
)

// Action is the outer envelope sent to the engine: a Query, or one of the
// control actions below. Every action carries its own unique id, distinct
// from any request it references.
type Action interface {
	// ActionID returns the id the engine will echo back in its reply.
	ActionID() string
}

func (q *Query) ActionID() string { return q.ID }

// QueryVersion asks the engine to identify itself.
type QueryVersion struct {
	ID string `json:"id"`
}

func (a *QueryVersion) ActionID() string { return a.ID }

// ClearCache asks the engine to drop its search tree and NN cache.
type ClearCache struct {
	ID string `json:"id"`
}

func (a *ClearCache) ActionID() string { return a.ID }

// Terminate cancels the in-flight query named by TerminateID. A non-empty
// TurnNumbers list cancels only those turns of a multi-turn query.
type Terminate struct {
	ID          string `json:"id"`
	TerminateID string `json:"terminateId"`
	TurnNumbers []int  `json:"turnNumbers,omitzero"`
}

func (a *Terminate) ActionID() string { return a.ID }
