package transport

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"slices"
	"strings"
)

// FormFile is one file part of a multipart upload. Content is buffered so
// the body can be replayed on retry.
type FormFile struct {
	Field       string
	Name        string
	ContentType string
	Content     []byte
}

// Multipart is a multipart/form-data payload.
type Multipart struct {
	Fields map[string]string
	Files  []FormFile
}

// Upload POSTs form to endpoint. The JSON content type is never set; the
// multipart writer supplies the boundary content type instead.
func (c *Client) Upload(ctx context.Context, endpoint string, form Multipart, opts ...CallOption) (*Response, error) {
	payload, contentType, err := encodeMultipart(form)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, request{
		method:      http.MethodPost,
		endpoint:    endpoint,
		payload:     payload,
		contentType: contentType,
		call:        c.newCall(opts),
	})
}

func encodeMultipart(form Multipart) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	names := make([]string, 0, len(form.Fields))
	for name := range form.Fields {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := w.WriteField(name, form.Fields[name]); err != nil {
			return nil, "", fmt.Errorf("transport: write form field %q: %w", name, err)
		}
	}

	for _, file := range form.Files {
		field := strings.TrimSpace(file.Field)
		if field == "" {
			return nil, "", fmt.Errorf("transport: form file %q has no field name", file.Name)
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, file.Name))
		contentType := strings.TrimSpace(file.ContentType)
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)
		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("transport: create form file %q: %w", field, err)
		}
		if _, err := part.Write(file.Content); err != nil {
			return nil, "", fmt.Errorf("transport: write form file %q: %w", field, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("transport: close multipart writer: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
