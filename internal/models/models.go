package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"structured-router/internal/schema"
)

// Role identifies the author of a conversational message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the supported roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Message represents a single conversational message. Slices of messages
// are sent to providers in order.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage builds a system message.
func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

// UserMessage builds a user message.
func UserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

// AssistantMessage builds an assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

var schemaNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// StructuredRequest names the schema the model output must conform to.
type StructuredRequest struct {
	Schema            schema.Node
	SchemaName        string
	SchemaDescription string
}

// Validate checks the schema name and the schema tree invariants.
func (r StructuredRequest) Validate() error {
	if !schemaNamePattern.MatchString(r.SchemaName) {
		return fmt.Errorf("schema name %q must match %s", r.SchemaName, schemaNamePattern)
	}
	if r.Schema == nil {
		return errors.New("schema must be provided")
	}
	return schema.Validate(r.Schema)
}

// StructuredResponse carries the decoded model output and the provider
// payload it came from.
type StructuredResponse struct {
	Data        any
	RawResponse any
}

// Decode re-encodes Data into target, typically a caller-defined struct.
func (r *StructuredResponse) Decode(target any) error {
	buf, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Errorf("encode structured data: %w", err)
	}
	if err := json.Unmarshal(buf, target); err != nil {
		return fmt.Errorf("decode structured data: %w", err)
	}
	return nil
}

// Model identifies a known model with provider metadata.
type Model struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	APIStyle string `json:"api_style"`
}
