package email

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

// HeaderServerToken carries the API token expected by the mail provider.
const HeaderServerToken = "X-Postmark-Server-Token"

// Client sends mail through an HTTP JSON API.
type Client struct {
	baseURL   string
	sender    string
	authToken string
	http      *http.Client
}

// NewClient returns a client posting to baseURL + "/email". timeout bounds
// each request.
func NewClient(baseURL, sender, authToken string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   baseURL,
		sender:    sender,
		authToken: authToken,
		http:      &http.Client{Timeout: timeout},
	}
}

type sendEmailRequest struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HTMLBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// Send posts msg to the provider. 400 and 422 responses are reported as
// permanent; other non-2xx responses and network failures are transient.
func (c *Client) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(sendEmailRequest{
		From:     c.sender,
		To:       msg.To,
		Subject:  msg.Subject,
		HTMLBody: msg.HTMLBody,
		TextBody: msg.TextBody,
	})
	if err != nil {
		return &SendError{Permanent: true, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/email", bytes.NewReader(body))
	if err != nil {
		return &SendError{Permanent: true, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderServerToken, c.authToken)

	res, err := c.http.Do(req)
	if err != nil {
		return &SendError{Err: err}
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	return &SendError{
		StatusCode: res.StatusCode,
		Permanent:  res.StatusCode == http.StatusBadRequest || res.StatusCode == http.StatusUnprocessableEntity,
		Err:        errors.New(http.StatusText(res.StatusCode)),
	}
}

var _ Sender = (*Client)(nil)

// String hides the token when the client is logged.
func (c *Client) String() string {
	return fmt.Sprintf("email.Client{base=%s sender=%s}", c.baseURL, c.sender)
}
