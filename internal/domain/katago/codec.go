package katago

import (
	"encoding/json"
	"fmt"

	kataerr "kata_analysis/internal/errors"
)

// EncodeAction renders an action as exactly one JSON object followed by a
// newline, ready to be appended to the engine's stdin stream. Query fields
// sit flattened at the top level with no discriminator; the control actions
// carry a fixed "action" field.
func EncodeAction(a Action) ([]byte, error) {
	var payload any
	switch v := a.(type) {
	case *Query:
		payload = v
	case *QueryVersion:
		payload = struct {
			ID     string `json:"id"`
			Action string `json:"action"`
		}{v.ID, ActionQueryVersion}
	case *ClearCache:
		payload = struct {
			ID     string `json:"id"`
			Action string `json:"action"`
		}{v.ID, ActionClearCache}
	case *Terminate:
		payload = struct {
			ID          string `json:"id"`
			Action      string `json:"action"`
			TerminateID string `json:"terminateId"`
			TurnNumbers []int  `json:"turnNumbers,omitzero"`
		}{v.ID, ActionTerminate, v.TerminateID, v.TurnNumbers}
	default:
		return nil, fmt.Errorf("unsupported action type %T", a)
	}

	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode action %q: %w", a.ActionID(), err)
	}
	return append(buf, '\n'), nil
}

// DecodeError is returned for a line that is not valid JSON or matches none
// of the known response shapes. It keeps the raw line so no input is ever
// silently discarded.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode engine response: %v (line: %s)", e.Err, e.Line)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DecodeResponse maps one line of engine output to a Response value.
//
// The response union is untagged, so matching follows a fixed priority
// order, which is part of the protocol contract:
//
//  1. a line with an "action" field is Version, CacheCleared or
//     TerminateAck according to that field's value; any other value is
//     unrecognized;
//  2. otherwise a line with moveInfos or rootInfo is a Result;
//  3. otherwise a line with turnNumber or noResults is a Resultless;
//  4. anything else is unrecognized.
//
// Unknown extra fields on a recognized shape are ignored.
func DecodeResponse(line []byte) (Response, error) {
	var probe struct {
		Action     *string         `json:"action"`
		MoveInfos  json.RawMessage `json:"moveInfos"`
		RootInfo   json.RawMessage `json:"rootInfo"`
		TurnNumber *int            `json:"turnNumber"`
		NoResults  *bool           `json:"noResults"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return nil, &DecodeError{Line: string(line), Err: err}
	}

	if probe.Action != nil {
		switch *probe.Action {
		case ActionQueryVersion:
			var v Version
			if err := json.Unmarshal(line, &v); err != nil {
				return nil, &DecodeError{Line: string(line), Err: err}
			}
			return &v, nil
		case ActionClearCache:
			var c CacheCleared
			if err := json.Unmarshal(line, &c); err != nil {
				return nil, &DecodeError{Line: string(line), Err: err}
			}
			return &c, nil
		case ActionTerminate:
			var t TerminateAck
			if err := json.Unmarshal(line, &t); err != nil {
				return nil, &DecodeError{Line: string(line), Err: err}
			}
			return &t, nil
		default:
			return nil, &DecodeError{
				Line: string(line),
				Err:  fmt.Errorf("%w: unknown action %q", kataerr.ErrUnrecognizedResponse, *probe.Action),
			}
		}
	}

	if len(probe.MoveInfos) > 0 || len(probe.RootInfo) > 0 {
		var r Result
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, &DecodeError{Line: string(line), Err: err}
		}
		return &r, nil
	}
	if probe.TurnNumber != nil || probe.NoResults != nil {
		var r Resultless
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, &DecodeError{Line: string(line), Err: err}
		}
		return &r, nil
	}

	return nil, &DecodeError{Line: string(line), Err: kataerr.ErrUnrecognizedResponse}
}
