// CLAUDE:SUMMARY Microsoft Graph sendMail client with client-credentials auth and placeholder credential detection.
// Package graphmail sends mail through the Microsoft Graph API.
//
// Authentication uses the OAuth2 client credentials flow against the
// tenant's token endpoint with the .default Graph scope. A send is
// considered successful only on HTTP 202; any other status surfaces the
// Graph error message to the caller.
package graphmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var (
	// ErrNotConfigured means one or more Graph credentials are empty.
	ErrNotConfigured = errors.New("graphmail: credentials not configured")
	// ErrPlaceholderCredentials means the stored credentials are still the
	// sample values shipped with the default configuration.
	ErrPlaceholderCredentials = errors.New("graphmail: credentials are placeholder values")
)

const (
	defaultBaseURL = "https://graph.microsoft.com/v1.0"
	sampleSender   = "rechnung@ppv-web.de"
)

// Config holds the Azure AD app registration used for Mail.Send.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Sender       string // mailbox the message is sent as

	// Timeout bounds a single sendMail call. Zero means 30s.
	Timeout time.Duration

	// BaseURL and TokenURL override the Graph and token endpoints.
	// Empty means the production Microsoft endpoints. Used by tests.
	BaseURL  string
	TokenURL string

	// HTTPClient, when set, is used as the base transport for both token
	// acquisition and Graph calls.
	HTTPClient *http.Client
}

// ValidateConfig reports whether cfg can plausibly send mail.
//
// It distinguishes missing credentials (ErrNotConfigured) from the
// sample values of a fresh install (ErrPlaceholderCredentials) so the
// caller can show a useful message instead of a Graph 401.
func ValidateConfig(cfg Config) error {
	if cfg.TenantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.Sender == "" {
		return ErrNotConfigured
	}
	for _, v := range []string{cfg.TenantID, cfg.ClientID, cfg.ClientSecret} {
		if isPlaceholder(v) {
			return ErrPlaceholderCredentials
		}
	}
	if cfg.Sender == sampleSender {
		return ErrPlaceholderCredentials
	}
	return nil
}

func isPlaceholder(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return strings.HasPrefix(v, "your-") && strings.HasSuffix(v, "-here")
}

// Client sends mail as a fixed sender mailbox.
type Client struct {
	cfg     Config
	baseURL string
	http    *http.Client
}

// New builds a Client from cfg. It does not contact Graph; credential
// problems surface on the first send or on TestConnection.
func New(cfg Config) (*Client, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}
	if cc.TokenURL == "" {
		cc.TokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID)
	}

	ctx := context.Background()
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}
	hc := cc.Client(ctx)
	hc.Timeout = cfg.Timeout

	return &Client{cfg: cfg, baseURL: strings.TrimRight(base, "/"), http: hc}, nil
}

// Message is one outgoing mail with an optional PDF attachment.
type Message struct {
	To             string
	Subject        string
	Body           string
	AttachmentName string
	Attachment     []byte
}

type graphEmailAddress struct {
	Address string `json:"address"`
}

type graphRecipient struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

type graphMessage struct {
	Subject      string            `json:"subject"`
	Body         graphBody         `json:"body"`
	ToRecipients []graphRecipient  `json:"toRecipients"`
	Attachments  []graphAttachment `json:"attachments,omitempty"`
}

type sendMailRequest struct {
	Message         graphMessage `json:"message"`
	SaveToSentItems bool         `json:"saveToSentItems"`
}

// SendMail posts msg to /users/{sender}/sendMail. Graph answers 202 with
// an empty body on success; anything else is an error carrying the Graph
// error message when one can be decoded.
func (c *Client) SendMail(ctx context.Context, msg Message) error {
	payload := sendMailRequest{
		Message: graphMessage{
			Subject:      msg.Subject,
			Body:         graphBody{ContentType: "Text", Content: msg.Body},
			ToRecipients: []graphRecipient{{EmailAddress: graphEmailAddress{Address: msg.To}}},
		},
		SaveToSentItems: true,
	}
	if len(msg.Attachment) > 0 {
		payload.Message.Attachments = []graphAttachment{{
			ODataType:    "#microsoft.graph.fileAttachment",
			Name:         msg.AttachmentName,
			ContentType:  "application/pdf",
			ContentBytes: base64.StdEncoding.EncodeToString(msg.Attachment),
		}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("graphmail: encode message: %w", err)
	}

	url := fmt.Sprintf("%s/users/%s/sendMail", c.baseURL, c.cfg.Sender)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("graphmail: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("graphmail: send to %s: %w", msg.To, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		return nil
	}
	return fmt.Errorf("graphmail: send to %s: http %d: %s", msg.To, resp.StatusCode, graphError(resp.Body))
}

// TestConnection acquires a token without sending anything. A 401 on the
// token endpoint means the credentials are wrong; network errors mean the
// tenant endpoint is unreachable.
func (c *Client) TestConnection(ctx context.Context) error {
	url := c.baseURL + "/users/" + c.cfg.Sender
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("graphmail: new request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("graphmail: connection test: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("graphmail: connection test: http %d: %s", resp.StatusCode, graphError(resp.Body))
}

// Sender returns the configured sender mailbox.
func (c *Client) Sender() string { return c.cfg.Sender }

// graphError extracts error.message from a Graph error body, falling back
// to the raw body when it is not the usual JSON shape.
func graphError(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 64*1024))
	if err != nil || len(raw) == 0 {
		return "no error body"
	}
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
