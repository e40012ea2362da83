package api

type (
	FileEntry struct {
		Name string `json:"name"`
		Type string `json:"type"`
		Size *int64 `json:"size,omitempty"`
	}
	PathItem struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	BrowseRequest struct {
		Type      string `json:"type"`
		DeviceID  string `json:"deviceId"`
		SessionID string `json:"sessionId"`
		Path      string `json:"path"`
	}
	UploadFiles struct {
		Type        string `json:"type"`
		DeviceID    string `json:"deviceId"`
		SessionID   string `json:"sessionId"`
		DownloadURL string `json:"downloadUrl"`
		RemotePath  string `json:"remotePath"`
	}
	DownloadRequest struct {
		Type      string     `json:"type"`
		DeviceID  string     `json:"deviceId"`
		SessionID string     `json:"sessionId"`
		Paths     []PathItem `json:"paths"`
	}
	DecisionFileshare struct {
		Type      string `json:"type"`
		DeviceID  string `json:"deviceId"`
		SessionID string `json:"sessionId"`
		Decision  bool   `json:"decision"`
	}
	RequestSessionFileshare struct {
		Type      string `json:"type"`
		DeviceID  string `json:"deviceId"`
		SessionID string `json:"sessionId"`
	}
	BrowseResponse struct {
		Type      string      `json:"type"`
		DeviceID  string      `json:"deviceId"`
		SessionID string      `json:"sessionId"`
		Path      string      `json:"path"`
		Entries   []FileEntry `json:"entries"`
	}
	UploadStatus struct {
		Type      string `json:"type"`
		DeviceID  string `json:"deviceId"`
		SessionID string `json:"sessionId"`
		Status    string `json:"status"`
		Message   string `json:"message,omitempty"`
		Path      string `json:"path,omitempty"`
		FileName  string `json:"fileName"`
	}
	DownloadResponse struct {
		Type        string `json:"type"`
		DeviceID    string `json:"deviceId"`
		SessionID   string `json:"sessionId"`
		DownloadURL string `json:"downloadUrl"`
	}
)

const (
	EntryFile   = "file"
	EntryFolder = "folder"

	UploadOk     = "success"
	UploadFailed = "error"
)

func NewRequestSessionFileshare(deviceID, sessionID string) RequestSessionFileshare {
	return RequestSessionFileshare{Type: MsgRequestSessionFileshare, DeviceID: deviceID, SessionID: sessionID}
}

func NewBrowseResponse(deviceID, sessionID, path string, entries []FileEntry) BrowseResponse {
	if entries == nil {
		entries = []FileEntry{}
	}
	return BrowseResponse{Type: MsgBrowseResponse, DeviceID: deviceID, SessionID: sessionID, Path: path, Entries: entries}
}

func NewUploadStatus(deviceID, sessionID, status, message, path, fileName string) UploadStatus {
	return UploadStatus{Type: MsgUploadStatus, DeviceID: deviceID, SessionID: sessionID,
		Status: status, Message: message, Path: path, FileName: fileName}
}

func NewDownloadResponse(deviceID, sessionID, downloadURL string) DownloadResponse {
	return DownloadResponse{Type: MsgDownloadResponse, DeviceID: deviceID, SessionID: sessionID, DownloadURL: downloadURL}
}
