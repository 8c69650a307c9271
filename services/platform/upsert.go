package platform

import (
	"context"
	"encoding/json"
	"net/http"

	"fabricclaim/services/claim"
)

// Object is a payload that Upsert can submit. LookupKey names the field used
// to find the existing object when creation conflicts.
type Object interface {
	LookupKey() LookupKey
}

// Document is a free-form object payload keyed by its Name.
type Document map[string]any

// LookupKey uses the document's Name, or the generic label "object" when the
// document has none.
func (d Document) LookupKey() LookupKey {
	if name, ok := d["Name"].(string); ok && name != "" {
		return LookupKey{Field: "Name", Value: name}
	}
	return LookupKey{Field: "Name", Value: "object"}
}

// Action is the terminal action an upsert took.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
)

// UpsertResult describes a successful upsert.
type UpsertResult struct {
	Action Action
	Moid   string
	Status int
}

type upsertState int

const (
	stateCreate upsertState = iota
	stateUpdate
)

// Upsert creates payload at apiPath and, if the platform answers 409, looks up
// the existing object once and posts the same payload to it.
func (s *Session) Upsert(ctx context.Context, apiPath string, payload Object, organization string) (UpsertResult, error) {
	state := stateCreate
	for {
		switch state {
		case stateCreate:
			status, body, err := s.Call(ctx, http.MethodPost, apiPath, payload)
			if err != nil {
				return UpsertResult{}, err
			}
			switch {
			case isSuccess(status):
				return UpsertResult{Action: ActionCreated, Moid: moidOf(body), Status: status}, nil
			case status == http.StatusConflict:
				s.logger.Info().Str("path", apiPath).Msg("object already exists, updating")
				state = stateUpdate
			default:
				return UpsertResult{}, &claim.SubmissionError{Method: http.MethodPost, Path: apiPath, Status: status, Body: truncate(body)}
			}

		case stateUpdate:
			moid, err := s.FindMoid(ctx, payload.LookupKey(), apiPath, organization)
			if err != nil {
				return UpsertResult{}, err
			}
			path := apiPath + "/" + moid
			status, body, err := s.Call(ctx, http.MethodPost, path, payload)
			if err != nil {
				return UpsertResult{}, err
			}
			if !isSuccess(status) {
				return UpsertResult{}, &claim.SubmissionError{Method: http.MethodPost, Path: path, Status: status, Body: truncate(body)}
			}
			return UpsertResult{Action: ActionUpdated, Moid: moid, Status: status}, nil
		}
	}
}

func moidOf(body []byte) string {
	var obj struct {
		Moid string `json:"Moid"`
	}
	if err := json.Unmarshal(body, &obj); err != nil {
		return ""
	}
	return obj.Moid
}
