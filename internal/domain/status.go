package domain

// Provenance records which source produced a snapshot.
type Provenance string

const (
	ProvenanceEdge  Provenance = "edge"
	ProvenanceCloud Provenance = "cloud"
)

// SlideRef identifies a single scanned slide at the source.
type SlideRef struct {
	SlideID  string `json:"slideId"`
	Barcode  string `json:"barcode,omitempty"`
	StainTag string `json:"stainTag,omitempty"`
}

// PatientMeta is optional patient context attached to mutation and viewer-link
// requests so the source can label newly bound slides.
type PatientMeta struct {
	PatientID string `json:"patientId,omitempty"`
	Name      string `json:"name,omitempty"`
}

// StatusSnapshot is the resolved, immutable view of a case: which slides are
// ready to view, which are still being ingested, and which are unconfirmed
// candidate matches. Updates produce a new snapshot, never a mutation in place.
type StatusSnapshot struct {
	CaseID           string     `json:"caseId"`
	ReadySlides      []SlideRef `json:"readySlides"`
	ProcessingSlides []SlideRef `json:"processingSlides"`
	CandidateSlides  []SlideRef `json:"candidateSlides,omitempty"`
	Provenance       Provenance `json:"provenance"`
}

// HasViewable reports whether at least one slide is ready to open.
func (s *StatusSnapshot) HasViewable() bool {
	return s != nil && len(s.ReadySlides) > 0
}

// MutationResult reports the outcome of an attach/detach operation.
// Confirmed by either source counts as success; MirroredToCloud records
// whether the best-effort cloud mirror also succeeded.
type MutationResult struct {
	CaseID          string `json:"caseId"`
	SlideID         string `json:"slideId"`
	ViaEdge         bool   `json:"viaEdge"`
	MirroredToCloud bool   `json:"mirroredToCloud"`
}

// Identity is the authenticated account identity reported by the cloud,
// including the edge agent bound to the account when one is provisioned.
type Identity struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName,omitempty"`
	AgentID     string `json:"agentId,omitempty"`
}

// AuthInfo is the auth + identity summary returned to the UI layer.
type AuthInfo struct {
	Mode                  AuthKind  `json:"mode"`
	CredentialFingerprint string    `json:"credentialFingerprint,omitempty"`
	Identity              *Identity `json:"identity,omitempty"`
	EdgeAgentID           string    `json:"edgeAgentId,omitempty"`
}

// PairingGrant is the device credential set returned when a pairing code is claimed.
type PairingGrant struct {
	DeviceToken string `json:"deviceToken"`
	DeviceID    string `json:"deviceId"`
	DeviceName  string `json:"deviceName,omitempty"`
}

// ViewerLinkRequest asks the cloud for an opaque navigable URL for a slide.
type ViewerLinkRequest struct {
	SlideID        string       `json:"slideId"`
	ExternalCaseID string       `json:"externalCaseId,omitempty"`
	Patient        *PatientMeta `json:"patient,omitempty"`
}
