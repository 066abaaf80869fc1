package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/KanuToCL/SonoTag-sub000/internal/score"
)

// Client message types
const (
	TypeStart     = "start"
	TypeConfigure = "configure"
	TypeStop      = "stop"
)

// Server event types
const (
	TypeStarted = "started"
	TypeColumns = "columns"
	TypeScores  = "scores"
	TypeError   = "error"
	TypeStopped = "stopped"
)

// bytesPerSample is the wire size of one little-endian float32 PCM sample
const bytesPerSample = 4

// ClientMessage is one JSON control envelope from a capture client. Binary
// WebSocket frames carry PCM audio instead and never reach this codec.
type ClientMessage struct {
	Type string `json:"type"`

	// start fields
	SourceRate int      `json:"source_rate,omitempty"`
	Prompts    []string `json:"prompts,omitempty"`

	// configure fields, all optional
	WindowSeconds *float64 `json:"window_seconds,omitempty"`
	SlideSpeed    *int     `json:"slide_speed,omitempty"`
	Normalizer    *string  `json:"normalizer,omitempty"`
	NewPrompts    []string `json:"new_prompts,omitempty"`
}

// ParseClientMessage decodes and validates one control envelope
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("malformed control message: %w", err)
	}

	switch msg.Type {
	case TypeStart:
		if msg.SourceRate <= 0 {
			return nil, fmt.Errorf("start requires a positive source_rate, got %d", msg.SourceRate)
		}
		if len(msg.Prompts) == 0 {
			return nil, fmt.Errorf("start requires a non-empty prompt list")
		}
	case TypeConfigure, TypeStop:
	case "":
		return nil, fmt.Errorf("control message missing type")
	default:
		return nil, fmt.Errorf("unknown control message type '%s'", msg.Type)
	}

	return &msg, nil
}

// DecodePCMFrame decodes one binary audio frame of little-endian float32
// mono samples
func DecodePCMFrame(data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty PCM frame")
	}
	if len(data)%bytesPerSample != 0 {
		return nil, fmt.Errorf("PCM frame length %d is not a multiple of %d", len(data), bytesPerSample)
	}

	samples := make([]float32, len(data)/bytesPerSample)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(data[i*bytesPerSample:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples, nil
}

// EncodePCMFrame encodes samples as a binary little-endian float32 frame
func EncodePCMFrame(samples []float32) []byte {
	data := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(data[i*bytesPerSample:], math.Float32bits(s))
	}
	return data
}

// ServerEvent is one JSON event pushed to a capture client
type ServerEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`

	// columns payload
	Spectral []float64 `json:"spectral,omitempty"`
	Heatmap  []float64 `json:"heatmap,omitempty"`

	// scores payload
	Prompts   []string            `json:"prompts,omitempty"`
	Values    map[string]float64  `json:"values,omitempty"`
	Ranked    []score.RankedScore `json:"ranked,omitempty"`
	LatencyMS float64             `json:"latency_ms,omitempty"`

	// error payload
	Message string `json:"message,omitempty"`
}

// Encode serializes the event for the wire
func (e *ServerEvent) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode server event: %w", err)
	}
	return data, nil
}

// NewStartedEvent announces a freshly created session
func NewStartedEvent(sessionID string, prompts []string) *ServerEvent {
	return &ServerEvent{Type: TypeStarted, SessionID: sessionID, Prompts: prompts}
}

// NewColumnsEvent carries one shift's freshly painted surface columns
func NewColumnsEvent(spectral, heatmap []float64) *ServerEvent {
	return &ServerEvent{Type: TypeColumns, Spectral: spectral, Heatmap: heatmap}
}

// NewScoresEvent carries a normalized score set and its ranked label panel
func NewScoresEvent(prompts []string, values map[string]float64, ranked []score.RankedScore, latencyMS float64) *ServerEvent {
	return &ServerEvent{
		Type:      TypeScores,
		Prompts:   prompts,
		Values:    values,
		Ranked:    ranked,
		LatencyMS: latencyMS,
	}
}

// NewErrorEvent carries a transient, user-visible error message
func NewErrorEvent(message string) *ServerEvent {
	return &ServerEvent{Type: TypeError, Message: message}
}

// NewStoppedEvent announces session termination
func NewStoppedEvent(sessionID string) *ServerEvent {
	return &ServerEvent{Type: TypeStopped, SessionID: sessionID}
}
