// Package invoker runs the queries an agent asks for against the resource
// of one of its actions.
package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	dftTimeout = time.Second * 30

	// HeaderCredential carries the action credential
	HeaderCredential = "x-api-key"

	maxResultSize = 4 << 20
)

var (
	ErrNoResource = errors.New("no resource to invoke")
	ErrEmptyQuery = errors.New("empty query")
)

// StatusError a non 2xx answer of the resource
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("invoke status %d: %s", e.Code, e.Body)
}

// Invoker ...
type Invoker struct {
	hc *http.Client
}

// New with timeout, zero means the default
func New(timeout time.Duration) *Invoker {
	if timeout <= 0 {
		timeout = dftTimeout
	}
	return &Invoker{hc: &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{Proxy: http.ProxyFromEnvironment},
	}}
}

type queryReq struct {
	Query string `json:"query"`
}

// Invoke posts the query to resource and returns the raw answer
func (iv *Invoker) Invoke(ctx context.Context, resource, query, credential string) (string, error) {
	if len(resource) == 0 {
		return "", ErrNoResource
	}
	if len(query) == 0 {
		return "", ErrEmptyQuery
	}
	body, err := json.Marshal(&queryReq{Query: query})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, resource, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if len(credential) > 0 {
		req.Header.Set(HeaderCredential, credential)
	}

	resp, err := iv.hc.Do(req)
	if err != nil {
		logger().Infow("invoke fail", "resource", resource, "err", err)
		return "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResultSize))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger().Infow("invoke status", "resource", resource, "status", resp.StatusCode)
		return "", &StatusError{Code: resp.StatusCode, Body: string(b)}
	}
	logger().Debugw("invoke done", "resource", resource, "size", len(b))
	return string(b), nil
}
