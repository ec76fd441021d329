// Package firestore is the pull-mode ingestion adapter. It reads pending
// commands from a Firestore-style REST document store and writes their status
// back.
package firestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"lumina-bridge/internal/connectivity"
)

const (
	DefaultBaseURL  = "https://firestore.googleapis.com/v1"
	DefaultDatabase = "(default)"

	// tokenSkew expires tokens early so a request never races the expiry.
	tokenSkew = time.Minute
)

var (
	// ErrUnauthorized is returned for 401/403 responses. It is always wrapped
	// as a transport fault.
	ErrUnauthorized = errors.New("firestore: unauthorized")
	// ErrNotConnected is returned when no session token is held.
	ErrNotConnected = errors.New("firestore: not connected")
)

// QueryError is a non-auth, non-2xx response from the document store.
type QueryError struct {
	StatusCode int
	Body       string
}

func (e *QueryError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("firestore: http %d", e.StatusCode)
	}
	return fmt.Sprintf("firestore: http %d: %s", e.StatusCode, e.Body)
}

// Client is a minimal Firestore REST client. It doubles as the session link
// owned by the connectivity supervisor: Connect signs in, Close forgets the token.
type Client struct {
	baseURL   string
	projectID string
	database  string
	creds     Credentials
	http      *http.Client
	now       func() time.Time
	logger    *log.Logger

	mu    sync.Mutex
	token Token
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the REST endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithDatabase overrides the database id.
func WithDatabase(database string) Option {
	return func(c *Client) {
		if database != "" {
			c.database = database
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithNow overrides the time source used for token expiry.
func WithNow(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a client for projectID signing in with creds.
func NewClient(projectID string, creds Credentials, opts ...Option) (*Client, error) {
	if projectID == "" {
		return nil, errors.New("firestore: empty project id")
	}
	if creds == nil {
		return nil, errors.New("firestore: nil credentials")
	}
	c := &Client{
		baseURL:   DefaultBaseURL,
		projectID: projectID,
		database:  DefaultDatabase,
		creds:     creds,
		http:      &http.Client{Timeout: 10 * time.Second},
		now:       time.Now,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connect signs in and stores the session token.
func (c *Client) Connect(ctx context.Context) error {
	if c == nil {
		return errors.New("firestore: nil client")
	}
	tok, err := c.creds.SignIn(ctx, c.http)
	if err != nil {
		return err
	}
	if tok.Value == "" {
		return errors.New("firestore: sign-in returned empty token")
	}
	if tok.UID == "" {
		return errors.New("firestore: sign-in returned empty uid")
	}
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
	c.logger.Printf("firestore signed in: uid=%s expires=%s", tok.UID, tok.Expiry.Format(time.RFC3339))
	return nil
}

// Connected reports whether a token is held and not about to expire.
func (c *Client) Connected() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validLocked()
}

func (c *Client) validLocked() bool {
	if c.token.Value == "" {
		return false
	}
	return c.token.Expiry.IsZero() || c.now().Add(tokenSkew).Before(c.token.Expiry)
}

// Close drops the session token.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	c.token = Token{}
	c.mu.Unlock()
	return nil
}

func (c *Client) session() (Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.validLocked() {
		return Token{}, connectivity.TransportFault(ErrNotConnected)
	}
	return c.token, nil
}

// userDocument returns the resource name of the signed-in user's document.
func (c *Client) userDocument(uid string) string {
	return fmt.Sprintf("projects/%s/databases/%s/documents/users/%s", c.projectID, c.database, uid)
}

func (c *Client) doJSON(ctx context.Context, method, url string, token string, body any, out any) error {
	var reqBody io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return connectivity.TransportFault(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		_, _ = io.Copy(io.Discard, resp.Body)
		return connectivity.TransportFault(fmt.Errorf("%w: http %d", ErrUnauthorized, resp.StatusCode))
	}
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &QueryError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
