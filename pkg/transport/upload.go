package transport

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultUploadName = "receipt.jpg"
	defaultUploadMIME = "image/jpeg"
)

// Attachment is a local file to send as multipart field "file".
type Attachment struct {
	// URI is a file:// URI or a plain filesystem path
	URI string
	// MIMEType defaults to the extension's type, then image/jpeg
	MIMEType string
	// FileName defaults to the URI's base name
	FileName string
}

// Upload POSTs the attachment as multipart form data. It follows the same
// 401 contract as Request.
func (c *Client) Upload(ctx context.Context, path string, att Attachment) (*Payload, error) {
	body, contentType, err := att.encode()
	if err != nil {
		return nil, err
	}
	return c.send(ctx, path, http.MethodPost, body, contentType, nil)
}

func (a Attachment) encode() ([]byte, string, error) {
	localPath, err := localPathFromURI(a.URI)
	if err != nil {
		return nil, "", err
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, "", fmt.Errorf("transport: read attachment: %w", err)
	}

	name := a.FileName
	if name == "" {
		name = filepath.Base(localPath)
		if name == "." || name == string(filepath.Separator) {
			name = defaultUploadName
		}
	}
	mimeType := a.MIMEType
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(name))
	}
	if mimeType == "" {
		mimeType = defaultUploadMIME
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	header.Set("Content-Type", mimeType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("transport: build multipart: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("transport: build multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("transport: build multipart: %w", err)
	}

	return buf.Bytes(), mw.FormDataContentType(), nil
}

func localPathFromURI(uri string) (string, error) {
	if uri == "" {
		return "", fmt.Errorf("transport: attachment URI is required")
	}
	if !strings.Contains(uri, "://") {
		return uri, nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("transport: invalid attachment URI: %w", err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("transport: unsupported attachment scheme %q", u.Scheme)
	}
	return filepath.FromSlash(u.Path), nil
}
