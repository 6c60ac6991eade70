package crestron

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	HEADER_AUTH_TOKEN = "Crestron-RestAPI-AuthToken"
	HEADER_AUTH_KEY   = "Crestron-RestAPI-AuthKey"

	maxBodyBytes = 4 << 20
)

type transport struct {
	baseURL string
	client  *http.Client
}

func newTransport(host string, timeout time.Duration, insecureSkipVerify bool) *transport {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: insecureSkipVerify,
	}
	return &transport{
		baseURL: fmt.Sprintf("https://%s/cws/api", host),
		client: &http.Client{
			Timeout:   timeout,
			Transport: tr,
		},
	}
}

func (t *transport) request(ctx context.Context, op, method, path string, header http.Header, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{Op: op, Err: &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 256)}}
	}

	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return &ProtocolError{Op: op, Reason: "empty body"}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ProtocolError{Op: op, Reason: "malformed body", Err: err}
	}
	return nil
}

func authKeyHeader(authKey string) http.Header {
	h := http.Header{}
	h.Set(HEADER_AUTH_KEY, authKey)
	return h
}

func authTokenHeader(token string) http.Header {
	h := http.Header{}
	h.Set(HEADER_AUTH_TOKEN, token)
	return h
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
