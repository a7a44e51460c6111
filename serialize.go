package cablelink

import (
	"encoding/json"
	"fmt"
)

// Operation is an opaque GraphQL operation supplied by the caller.
// Immutable once submitted.
type Operation struct {
	Query         string
	Variables     map[string]any
	OperationName string
}

// Response is one result delivered on a stream. Data and Errors are the raw
// GraphQL payload fields; protocol-level GraphQL errors pass through here
// unmodified, they are never interpreted by the link.
type Response struct {
	Data   json.RawMessage
	Errors json.RawMessage

	// Raw is the full result payload as broadcast by the server.
	Raw json.RawMessage
}

// OperationSerializer turns an Operation into the action parameters carried
// by the execute call. Pure and stateless.
type OperationSerializer interface {
	Serialize(op Operation) (map[string]any, error)
}

// ResponseParser turns a broadcast result payload into a Response. Pure and
// stateless.
type ResponseParser interface {
	Parse(result json.RawMessage) (Response, error)
}

// GraphQLSerializer emits the conventional query/variables/operationName
// parameter shape.
type GraphQLSerializer struct{}

func (GraphQLSerializer) Serialize(op Operation) (map[string]any, error) {
	if op.Query == "" {
		return nil, fmt.Errorf("serialize operation: query is empty")
	}
	params := map[string]any{
		"query": op.Query,
	}
	if len(op.Variables) > 0 {
		params["variables"] = op.Variables
	}
	if op.OperationName != "" {
		params["operationName"] = op.OperationName
	}
	return params, nil
}

// GraphQLParser splits a result payload into data and errors.
type GraphQLParser struct{}

func (GraphQLParser) Parse(result json.RawMessage) (Response, error) {
	var body struct {
		Data   json.RawMessage `json:"data"`
		Errors json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return Response{}, fmt.Errorf("parse result payload: %w", err)
	}
	return Response{
		Data:   body.Data,
		Errors: body.Errors,
		Raw:    result,
	}, nil
}
