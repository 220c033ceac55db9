// Package wsman issues WS-MAN Enumerate/Invoke operations against Dell's
// DCIM resource URIs and classifies the SOAP reply.
package wsman

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"dracd/internal/dracerr"
	"dracd/internal/node"
	"dracd/internal/xmlview"
)

// Return codes recognized by Invoke.
const (
	ReturnSuccess = 0
	ReturnCreated = 4096
)

// ClientConfig configures transport behavior; it is intentionally separate
// from node.Credentials so the timeout/TLS knobs come from process
// configuration rather than per-node state.
type ClientConfig struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Client issues WS-MAN requests against a single node's RAC endpoint. A
// Client is cheap to construct and holds no mutable state beyond the
// underlying *http.Client, so callers may create one per call or reuse one
// across a node's lifetime.
type Client struct {
	httpClient *http.Client
	endpoint   string
	user       string
	password   string
}

// NewClient builds a Client targeting creds' RAC endpoint.
func NewClient(creds node.Credentials, cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
	}

	scheme := string(creds.Protocol)
	if scheme == "" {
		scheme = string(node.ProtocolHTTPS)
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		endpoint:   fmt.Sprintf("%s://%s:%d/wsman", scheme, creds.Host, creds.Port),
		user:       creds.User,
		password:   creds.Password,
	}
}

func (c *Client) post(ctx context.Context, payload []byte) (xmlview.View, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return xmlview.View{}, &dracerr.ClientError{Op: "build request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/soap+xml;charset=UTF-8")
	req.SetBasicAuth(c.user, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return xmlview.View{}, &dracerr.ClientError{Op: "send request", Cause: err}
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return xmlview.View{}, &dracerr.ClientError{Op: "read response body", Cause: err}
	}

	if resp.StatusCode >= 400 {
		return xmlview.View{}, &dracerr.ClientError{
			Op:    "transport",
			Cause: fmt.Errorf("RAC returned HTTP %d: %s", resp.StatusCode, buf.String()),
		}
	}

	view, err := xmlview.Parse(buf.Bytes())
	if err != nil {
		return xmlview.View{}, &dracerr.ClientError{Op: "parse response", Cause: err}
	}
	return view, nil
}

// Enumerate issues a WS-Enumeration Enumerate against resourceURI, optionally
// scoped by a CQL filter query, and returns the parsed reply. The reply is
// returned as a single View; no response is ever consumed twice.
func (c *Client) Enumerate(ctx context.Context, resourceURI, filter string) (xmlview.View, error) {
	payload, err := buildEnumerate(resourceURI, filter)
	if err != nil {
		return xmlview.View{}, &dracerr.ClientError{Op: "build enumerate", Cause: err}
	}

	log.Debug().Str("component", "wsman").Str("resource_uri", resourceURI).Str("filter", filter).Msg("enumerate")

	return c.post(ctx, payload)
}

// Invoke issues a CIM method call against resourceURI with the given
// selectors (identifying the target instance) and properties (method input
// parameters), and validates the observed ReturnValue against expectedReturn
// (default ReturnSuccess when expectedReturn is 0 and the caller genuinely
// means SUCCESS — callers pass ReturnCreated explicitly for create-style
// methods).
func (c *Client) Invoke(ctx context.Context, resourceURI, method string, selectors map[string]string, properties map[string]any, expectedReturn int) (xmlview.View, error) {
	payload, err := buildInvoke(resourceURI, method, selectors, properties)
	if err != nil {
		return xmlview.View{}, &dracerr.ClientError{Op: "build invoke", Cause: err}
	}

	log.Debug().Str("component", "wsman").Str("resource_uri", resourceURI).Str("method", method).Msg("invoke")

	view, err := c.post(ctx, payload)
	if err != nil {
		return xmlview.View{}, err
	}

	returnValue, err := parseReturnValue(view)
	if err != nil {
		return view, &dracerr.OperationFailed{Message: "missing or malformed ReturnValue", Cause: err}
	}

	if returnValue != expectedReturn {
		if msg := view.Find("Message").TextOr(""); msg != "" {
			return view, &dracerr.OperationFailed{Message: msg}
		}
		return view, &dracerr.UnexpectedReturnValue{Expected: expectedReturn, Got: returnValue}
	}

	return view, nil
}

func parseReturnValue(view xmlview.View) (int, error) {
	text := view.Find("ReturnValue").TextOr("")
	if text == "" {
		return 0, fmt.Errorf("ReturnValue element absent")
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("ReturnValue %q is not an integer: %w", text, err)
	}
	return n, nil
}
