package command

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service:      "auth",
			Action:       "register",
			Method:       "POST",
			PathTemplate: "/auth/register",
			Fields: []Field{
				{Name: "username", Prompt: "username", Type: FieldString, Required: true},
				{Name: "password", Prompt: "password", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "auth",
			Action:       "login",
			Method:       "POST",
			PathTemplate: "/auth/login",
			Fields: []Field{
				{Name: "username", Prompt: "username", Type: FieldString, Required: true},
				{Name: "password", Prompt: "password", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "auth",
			Action:       "refresh",
			Method:       "POST",
			PathTemplate: "/auth/refresh",
			Fields: []Field{
				{Name: "refresh_token", Prompt: "refresh_token", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "auth",
			Action:       "logout",
			Method:       "POST",
			PathTemplate: "/auth/logout",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "refresh_token", Prompt: "refresh_token", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "auth",
			Action:       "me",
			Method:       "GET",
			PathTemplate: "/auth/me",
			RequiresAuth: true,
		},
		{
			Service:      "user",
			Action:       "profile",
			Method:       "GET",
			PathTemplate: "/users/:username",
			Fields: []Field{
				{Name: "username", Prompt: "username", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "user",
			Action:       "history",
			Method:       "GET",
			PathTemplate: "/users/:username/history",
			Fields: []Field{
				{Name: "username", Prompt: "username", Type: FieldString, Required: true},
				{Name: "limit", Prompt: "limit", Type: FieldInt, Query: true},
				{Name: "offset", Prompt: "offset", Type: FieldInt, Query: true},
			},
		},
		{
			Service:      "leaderboard",
			Action:       "list",
			Method:       "GET",
			PathTemplate: "/leaderboard",
			Fields: []Field{
				{Name: "difficulty", Prompt: "difficulty (easy|medium|hard)", Type: FieldString, Query: true},
				{Name: "sort_by", Prompt: "sort_by (rating|wins|streak)", Type: FieldString, Query: true},
				{Name: "limit", Prompt: "limit", Type: FieldInt, Query: true},
				{Name: "offset", Prompt: "offset", Type: FieldInt, Query: true},
			},
		},
		{
			Service:      "problem",
			Action:       "list",
			Method:       "GET",
			PathTemplate: "/problems",
			Fields: []Field{
				{Name: "difficulty", Prompt: "difficulty (easy|medium|hard)", Type: FieldString, Query: true},
			},
		},
		{
			Service:      "problem",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/problems/:id",
			Fields: []Field{
				{Name: "id", Prompt: "problem_id", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "submit",
			Action:       "create",
			Method:       "POST",
			PathTemplate: "/submit",
			Fields: []Field{
				{Name: "username", Prompt: "username", Type: FieldString, Required: true},
				{Name: "problem_id", Prompt: "problem_id", Type: FieldString, Required: true},
				{Name: "language", Prompt: "language", Type: FieldString, Required: true},
				{Name: "code", Prompt: "code", Type: FieldString, Required: true},
				{Name: "room_id", Prompt: "room_id", Type: FieldString},
				{Name: "source_file", Prompt: "source_file", Type: FieldFile},
			},
		},
		{
			Service:      "match",
			Action:       "join",
			Method:       "POST",
			PathTemplate: "/matchmaking/join",
			Fields: []Field{
				{Name: "username", Prompt: "username", Type: FieldString, Required: true},
				{Name: "connection_id", Prompt: "connection_id", Type: FieldString, Required: true},
				{Name: "difficulty", Prompt: "difficulty (easy|medium|hard|any)", Type: FieldString, Required: true},
				{Name: "game_mode", Prompt: "game_mode (casual|ranked)", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "match",
			Action:       "leave",
			Method:       "POST",
			PathTemplate: "/matchmaking/leave",
			Fields: []Field{
				{Name: "connection_id", Prompt: "connection_id", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "match",
			Action:       "status",
			Method:       "GET",
			PathTemplate: "/matchmaking/status",
			Fields: []Field{
				{Name: "connection_id", Prompt: "connection_id", Type: FieldString, Required: true, Query: true},
			},
		},
		{
			Service:      "rooms",
			Action:       "live",
			Method:       "GET",
			PathTemplate: "/rooms/live",
		},
		{
			Service:      "languages",
			Action:       "list",
			Method:       "GET",
			PathTemplate: "/languages",
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		key := fmt.Sprintf("%s %s", cmd.Service, cmd.Action)
		result[key] = cmd
	}
	return result
}

// BuildRequest creates HTTP request spec based on command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	path, err := buildPath(cmd.PathTemplate, cmd.Fields, params)
	if err != nil {
		return RequestSpec{}, err
	}

	var body []byte
	if cmd.Method != "GET" && cmd.Method != "DELETE" {
		payload, err := buildPayload(cmd, params)
		if err != nil {
			return RequestSpec{}, err
		}
		if payload != nil {
			body, err = json.Marshal(payload)
			if err != nil {
				return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
			}
		}
	}

	return RequestSpec{
		Method: cmd.Method,
		Path:   path,
		Body:   body,
	}, nil
}

// buildPath substitutes :name path parameters and appends the command's
// query fields.
func buildPath(template string, fields []Field, params Params) (string, error) {
	path := template
	query := url.Values{}
	for _, field := range fields {
		value := params.Get(field.Name)
		placeholder := ":" + field.Name
		switch {
		case strings.Contains(path, placeholder):
			if value == "" {
				return "", fmt.Errorf("missing path parameter: %s", field.Name)
			}
			path = strings.ReplaceAll(path, placeholder, url.PathEscape(value))
		case field.Query && value != "":
			query.Set(field.Name, value)
		}
	}
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	return path, nil
}

func buildPayload(cmd Command, params Params) (interface{}, error) {
	switch cmd.Service {
	case "auth":
		switch cmd.Action {
		case "register", "login":
			return map[string]string{
				"username": params.Get("username"),
				"password": params.Get("password"),
			}, nil
		case "refresh", "logout":
			return map[string]string{
				"refresh_token": params.Get("refresh_token"),
			}, nil
		}
	case "submit":
		return buildSubmitPayload(params)
	case "match":
		switch cmd.Action {
		case "join":
			return map[string]string{
				"username":      params.Get("username"),
				"connection_id": params.Get("connection_id"),
				"difficulty":    params.Get("difficulty"),
				"game_mode":     params.Get("game_mode"),
			}, nil
		case "leave":
			return map[string]string{
				"connection_id": params.Get("connection_id"),
			}, nil
		}
	}
	return nil, nil
}

func buildSubmitPayload(params Params) (interface{}, error) {
	code := params.Get("code")
	if (code == "" || code == "_file_") && params.Get("source_file") != "" {
		loaded, err := ReadFile(params.Get("source_file"))
		if err != nil {
			return nil, err
		}
		code = loaded
	}
	if code == "" {
		return nil, fmt.Errorf("code is required")
	}

	payload := map[string]interface{}{
		"username":   params.Get("username"),
		"problem_id": params.Get("problem_id"),
		"language":   params.Get("language"),
		"code":       code,
	}
	if params.Get("room_id") != "" {
		payload["room_id"] = params.Get("room_id")
	}
	return payload, nil
}
