package domain

import (
	"encoding/json"

	"github.com/coder/websocket"
)

// Operation types in the navi.v1 subprotocol.
const (
	OpResolveStatus     = "resolve_status"
	OpRefreshStatus     = "refresh_status"
	OpAttachSlide       = "attach_slide"
	OpDetachSlide       = "detach_slide"
	OpRequestViewerLink = "request_viewer_link"
	OpGetAuthInfo       = "get_auth_info"
	OpClaimPairingCode  = "claim_pairing_code"
	OpCaseChanged       = "case_changed" // fire-and-forget pointer update, no reply

	MessageTypeReady  = "ready"
	MessageTypeResult = "result"
	MessageTypeError  = "error"

	StatusGoingAway websocket.StatusCode = 1001 // Standard code for server going away
)

// OpRequest is the inbound envelope in the navi.v1 subprotocol. ID is the
// correlation identifier echoed back on the matching result.
type OpRequest struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OpResult is the outbound envelope. Type is "result" on success and "error"
// on failure; Op names the operation the result answers.
type OpResult struct {
	ID      string      `json:"id,omitempty"`
	Type    string      `json:"type"`
	Op      string      `json:"op,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// --- Operation payloads --- //

type ResolveStatusPayload struct {
	CaseID string `json:"caseId"`
}

type AttachSlidePayload struct {
	CaseID  string       `json:"caseId"`
	SlideID string       `json:"slideId"`
	Patient *PatientMeta `json:"patient,omitempty"`
}

type DetachSlidePayload struct {
	CaseID  string `json:"caseId"`
	SlideID string `json:"slideId"`
}

type ViewerLinkPayload struct {
	SlideID        string       `json:"slideId"`
	ExternalCaseID string       `json:"externalCaseId,omitempty"`
	Patient        *PatientMeta `json:"patient,omitempty"`
}

type ViewerLinkResult struct {
	SlideID string `json:"slideId"`
	URL     string `json:"url"`
}

type ClaimPairingPayload struct {
	Code string `json:"code"`
}

type CaseChangedPayload struct {
	CaseID string `json:"caseId"` // empty means "no case detected"
}

// NewReadyMessage creates the greeting sent once a connection is accepted.
func NewReadyMessage() OpResult {
	return OpResult{Type: MessageTypeReady}
}

// NewResultMessage creates a success reply correlated to a request.
func NewResultMessage(id, op string, payload interface{}) OpResult {
	return OpResult{ID: id, Type: MessageTypeResult, Op: op, Payload: payload}
}

// NewErrorResult creates a failure reply correlated to a request.
func NewErrorResult(id, op string, errResp ErrorResponse) OpResult {
	return OpResult{ID: id, Type: MessageTypeError, Op: op, Payload: errResp}
}
