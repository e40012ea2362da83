package api

// Frame types routed to the session coordinator.
const (
	MsgApproved           = "approved"
	MsgRejected           = "rejected"
	MsgInfo               = "info"
	MsgError              = "error"
	MsgSessionConfirmed   = "session_confirmed"
	MsgSessionEnded       = "session_ended"
	MsgInactiveDisconnect = "inactive_disconnect"
	MsgSessionExpired     = "session_expired"
)

// MsgSuccess acknowledges a register frame; the server attaches the
// auth token that authorizes session requests.
const MsgSuccess = "success"

// Frame types routed to the negotiation coordinator.
const (
	MsgOffer        = "offer"
	MsgAnswer       = "answer"
	MsgIceCandidate = "ice-candidate"
)

// Frame types routed to the file-share coordinator.
const (
	MsgBrowseRequest     = "browse_request"
	MsgUploadFiles       = "upload_files"
	MsgDownloadRequest   = "download_request"
	MsgDecisionFileshare = "decision_fileshare"
)

// Raw input frames forwarded to the event sink untouched.
const (
	MsgClick    = "click"
	MsgSwipe    = "swipe"
	MsgKeyboard = "keyboard"
)

// Outbound frame types.
const (
	MsgRegister                = "register"
	MsgStatus                  = "status"
	MsgSessionRequest          = "session_request"
	MsgSessionConfirmation     = "session_final_confirmation"
	MsgTerminateSession        = "terminate_session"
	MsgDeregister              = "deregister"
	MsgRequestSessionFileshare = "request_session_fileshare"
	MsgBrowseResponse          = "browse_response"
	MsgUploadStatus            = "upload_status"
	MsgDownloadResponse        = "download_response"
)

type (
	Register struct {
		Type            string `json:"type"`
		DeviceID        string `json:"deviceId"`
		RegistrationKey string `json:"registrationKey"`
		Model           string `json:"model"`
		OSVersion       string `json:"osVersion"`
	}
	// Status is the periodic liveness frame.
	Status struct {
		Type     string `json:"type"`
		DeviceID string `json:"deviceId"`
		Status   string `json:"status"`
	}
	SessionRequest struct {
		Type  string `json:"type"`
		From  string `json:"from"`
		Token string `json:"token"`
	}
	SessionConfirmation struct {
		Type     string `json:"type"`
		From     string `json:"from"`
		Token    string `json:"token"`
		Decision string `json:"decision"`
	}
	TerminateSession struct {
		Type     string `json:"type"`
		DeviceID string `json:"deviceId"`
		Token    string `json:"token"`
	}
	Deregister struct {
		Type              string `json:"type"`
		DeviceID          string `json:"deviceId"`
		DeregistrationKey string `json:"deregistrationKey,omitempty"`
	}
	// RegistrationAck is the server's answer to a register frame.
	RegistrationAck struct {
		Type    string `json:"type"`
		Message string `json:"message,omitempty"`
		Token   string `json:"token"`
	}
)

const (
	StatusActive     = "active"
	DecisionAccepted = "accepted"
	DecisionRejected = "rejected"
)

func NewRegister(deviceID, key, model, osVersion string) Register {
	return Register{Type: MsgRegister, DeviceID: deviceID, RegistrationKey: key, Model: model, OSVersion: osVersion}
}

func NewStatus(deviceID string) Status {
	return Status{Type: MsgStatus, DeviceID: deviceID, Status: StatusActive}
}

func NewSessionRequest(from, token string) SessionRequest {
	return SessionRequest{Type: MsgSessionRequest, From: from, Token: token}
}

func NewSessionConfirmation(from, token string, accepted bool) SessionConfirmation {
	decision := DecisionRejected
	if accepted {
		decision = DecisionAccepted
	}
	return SessionConfirmation{Type: MsgSessionConfirmation, From: from, Token: token, Decision: decision}
}

func NewTerminateSession(deviceID, token string) TerminateSession {
	return TerminateSession{Type: MsgTerminateSession, DeviceID: deviceID, Token: token}
}

func NewDeregister(deviceID, key string) Deregister {
	return Deregister{Type: MsgDeregister, DeviceID: deviceID, DeregistrationKey: key}
}
