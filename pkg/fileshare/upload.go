package fileshare

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/screenport/agent/pkg/monitoring"
)

var ErrBadEndpoint = errors.New("fileshare: not a websocket url")

// UploadEndpoint derives the HTTP share endpoint from the signaling
// URL: same host, ws scheme swapped for http.
func UploadEndpoint(wsURL string) (string, error) {
	switch {
	case strings.HasPrefix(wsURL, "wss://"):
		return "https://" + strings.TrimPrefix(wsURL, "wss://") + "/api/download", nil
	case strings.HasPrefix(wsURL, "ws://"):
		return "http://" + strings.TrimPrefix(wsURL, "ws://") + "/api/download", nil
	}
	return "", ErrBadEndpoint
}

// HTTPUploader posts files as multipart form data.
type HTTPUploader struct {
	client *http.Client
}

func NewHTTPUploader(client *http.Client) HTTPUploader {
	if client == nil {
		client = http.DefaultClient
	}
	return HTTPUploader{client: client}
}

func (u HTTPUploader) Upload(ctx context.Context, endpoint string, fields map[string]string, path string, name string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	mediaType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(path); err == nil {
		mediaType = mt.String()
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeForm(mw, fields, in, name, mediaType)
		_ = mw.Close()
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("fileshare: upload rejected: %s", resp.Status)
	}
	if info, err := os.Stat(path); err == nil {
		monitoring.TransferBytes.WithLabelValues("out").Add(float64(info.Size()))
	}
	return nil
}

func writeForm(mw *multipart.Writer, fields map[string]string, in io.Reader, name, mediaType string) error {
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, name))
	h.Set("Content-Type", mediaType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, in)
	return err
}
