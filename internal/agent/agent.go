// Package agent defines the Agent record and the envelopes exchanged
// between the kernel, the orchestrator, and an agent's handler.
package agent

import (
	"context"
	"time"
)

// State is an agent's lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateIdle          State = "idle"
	StateBusy          State = "busy"
	StateStopped       State = "stopped"
	StateError         State = "error"
)

// Permission is a free-form capability string drawn from the recognized
// vocabulary below. Agents may declare permissions outside this set; the
// vocabulary only names the ones the runtime itself checks.
type Permission string

const (
	PermIPCSend          Permission = "ipc:send"
	PermIPCSendTag       Permission = "ipc:send:tag"
	PermIPCSendBroadcast Permission = "ipc:send:broadcast"
	PermIPCReceive       Permission = "ipc:receive"
	PermRead             Permission = "read"
	PermWrite            Permission = "write"
	PermExecute          Permission = "execute"
	PermNetwork          Permission = "network"
	PermSystem           Permission = "system"
)

// HandlerFunc is the mandatory per-agent entry point invoked by the
// orchestrator for atomic tasks.
type HandlerFunc func(ctx context.Context, input HandlerInput) (HandlerResult, error)

// MessageFunc is the optional handler invoked by the kernel for every
// IPC envelope delivered to an agent's inbox.
type MessageFunc func(ctx context.Context, msg IPCMessage)

// Metadata carries opaque, human-inspectable agent attributes.
type Metadata struct {
	Capabilities []string       `json:"capabilities,omitempty"`
	Version      string         `json:"version,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// Agent is exclusively owned by the AgentRegistry; all other components
// hold only its ID.
type Agent struct {
	ID          string
	Name        string
	Model       string
	State       State
	Tags        []string
	Permissions map[Permission]struct{}
	Handler     HandlerFunc
	OnMessage   MessageFunc
	Metadata    Metadata
}

// HasPermission reports whether the agent declares any of the given
// permissions.
func (a *Agent) HasPermission(perms ...Permission) bool {
	if a == nil {
		return false
	}
	for _, p := range perms {
		if _, ok := a.Permissions[p]; ok {
			return true
		}
	}
	return false
}

// HasTag reports whether tag is present in the agent's tag list.
func (a *Agent) HasTag(tag string) bool {
	if a == nil {
		return false
	}
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// History is one prior turn of a handler's conversation context.
type History struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// GenerationOptions tunes a ModelBackend call triggered from a handler.
type GenerationOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"maxTokens,omitempty"`
	Seed        *int64   `json:"seed,omitempty"`
}

// HandlerInput is the JSON-serializable envelope passed to a handler.
// Handlers that only care about a raw string treat Query as that string.
type HandlerInput struct {
	Query      string             `json:"query,omitempty"`
	Objective  string             `json:"objective,omitempty"`
	Context    map[string]any     `json:"context,omitempty"`
	History    []History          `json:"history,omitempty"`
	Generation *GenerationOptions `json:"generation,omitempty"`
}

// PayloadType tags the variant held by a Payload.
type PayloadType string

const (
	PayloadText     PayloadType = "text"
	PayloadCode     PayloadType = "code"
	PayloadArtifact PayloadType = "artifact"
	PayloadError    PayloadType = "error"
	PayloadHTML     PayloadType = "html"
	PayloadJSON     PayloadType = "json"
)

// CodeFile is one file of a PayloadCode result.
type CodeFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Payload is the tagged union a handler result (or an IPC message) may
// carry. Exactly the fields matching Type are meaningful; the rest are
// left zero.
type Payload struct {
	Type    PayloadType    `json:"type"`
	Content string         `json:"content,omitempty"`
	Files   []CodeFile     `json:"files,omitempty"`
	ID      string         `json:"id,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	JSON    map[string]any `json:"json,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// TextPayload builds a PayloadText result, the common case.
func TextPayload(content string) Payload {
	return Payload{Type: PayloadText, Content: content}
}

// ErrorPayload builds a PayloadError result.
func ErrorPayload(reason string) Payload {
	return Payload{Type: PayloadError, Reason: reason}
}

// HandlerResult is the serialized object an agent handler returns.
type HandlerResult struct {
	OK     bool    `json:"ok"`
	Agent  string  `json:"agent"`
	Result Payload `json:"result"`
}

// IPCMessage is one entry of a recipient's inbox or a transient
// pub/sub envelope. Either To or Tag is set; both unset means the
// reserved "broadcast" tag was used for ACL purposes.
type IPCMessage struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to,omitempty"`
	Tag       string    `json:"tag,omitempty"`
	Type      string    `json:"type"`
	Payload   Payload   `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// ReservedBroadcastTag is the ACL tag consulted for broadcast sends.
const ReservedBroadcastTag = "broadcast"
