package firestore

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultIdentityURL = "https://identitytoolkit.googleapis.com/v1"
	DefaultTokenURL    = "https://oauth2.googleapis.com/token"

	datastoreScope = "https://www.googleapis.com/auth/datastore"
	jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)

// Token is a bearer token and the user id whose documents it may read.
type Token struct {
	Value  string
	UID    string
	Expiry time.Time
}

// Credentials obtains a session token.
type Credentials interface {
	SignIn(ctx context.Context, client *http.Client) (Token, error)
}

// PasswordAuth signs in with an email and password.
type PasswordAuth struct {
	APIKey      string
	Email       string
	Password    string
	IdentityURL string
}

// SignIn implements Credentials.
func (a PasswordAuth) SignIn(ctx context.Context, client *http.Client) (Token, error) {
	if a.APIKey == "" || a.Email == "" {
		return Token{}, errors.New("firestore auth: missing api key or email")
	}
	body := map[string]any{
		"email":             a.Email,
		"password":          a.Password,
		"returnSecureToken": true,
	}
	return identitySignIn(ctx, client, a.IdentityURL, "accounts:signInWithPassword", a.APIKey, body)
}

// AnonymousAuth signs up a fresh anonymous user on every connect.
type AnonymousAuth struct {
	APIKey      string
	IdentityURL string
}

// SignIn implements Credentials.
func (a AnonymousAuth) SignIn(ctx context.Context, client *http.Client) (Token, error) {
	if a.APIKey == "" {
		return Token{}, errors.New("firestore auth: missing api key")
	}
	body := map[string]any{"returnSecureToken": true}
	return identitySignIn(ctx, client, a.IdentityURL, "accounts:signUp", a.APIKey, body)
}

type identityResponse struct {
	IDToken   string `json:"idToken"`
	LocalID   string `json:"localId"`
	ExpiresIn string `json:"expiresIn"`
}

func identitySignIn(ctx context.Context, client *http.Client, base, method, apiKey string, body any) (Token, error) {
	if base == "" {
		base = DefaultIdentityURL
	}
	endpoint := strings.TrimRight(base, "/") + "/" + method + "?key=" + url.QueryEscape(apiKey)
	payload, err := json.Marshal(body)
	if err != nil {
		return Token{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Token{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp identityResponse
	if err := doAuth(client, req, &resp); err != nil {
		return Token{}, err
	}
	tok := Token{Value: resp.IDToken, UID: resp.LocalID}
	if secs, err := strconv.Atoi(resp.ExpiresIn); err == nil && secs > 0 {
		tok.Expiry = time.Now().Add(time.Duration(secs) * time.Second)
	}
	return tok, nil
}

// ServiceAccountAuth exchanges a self-signed RS256 assertion for an access
// token. The service account reads the documents of the configured UID.
type ServiceAccountAuth struct {
	Email    string
	KeyID    string
	Key      *rsa.PrivateKey
	UID      string
	TokenURL string
	Lifetime time.Duration
}

type serviceAccountFile struct {
	ClientEmail  string `json:"client_email"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	TokenURI     string `json:"token_uri"`
}

// LoadServiceAccount reads a JSON service-account key file.
func LoadServiceAccount(path, uid string) (*ServiceAccountAuth, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("firestore auth: read key file: %w", err)
	}
	return ParseServiceAccount(data, uid)
}

// ParseServiceAccount parses a JSON service-account key.
func ParseServiceAccount(data []byte, uid string) (*ServiceAccountAuth, error) {
	var file serviceAccountFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("firestore auth: parse key file: %w", err)
	}
	if file.ClientEmail == "" {
		return nil, errors.New("firestore auth: key file missing client_email")
	}
	if uid == "" {
		return nil, errors.New("firestore auth: service account needs a uid")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(file.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("firestore auth: parse private key: %w", err)
	}
	return &ServiceAccountAuth{
		Email:    file.ClientEmail,
		KeyID:    file.PrivateKeyID,
		Key:      key,
		UID:      uid,
		TokenURL: file.TokenURI,
	}, nil
}

type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// SignIn implements Credentials.
func (a *ServiceAccountAuth) SignIn(ctx context.Context, client *http.Client) (Token, error) {
	if a == nil || a.Key == nil {
		return Token{}, errors.New("firestore auth: nil service account key")
	}
	tokenURL := a.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	lifetime := a.Lifetime
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   a.Email,
		"sub":   a.Email,
		"aud":   tokenURL,
		"scope": datastoreScope,
		"iat":   now.Unix(),
		"exp":   now.Add(lifetime).Unix(),
	}
	assertion := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if a.KeyID != "" {
		assertion.Header["kid"] = a.KeyID
	}
	signed, err := assertion.SignedString(a.Key)
	if err != nil {
		return Token{}, fmt.Errorf("firestore auth: sign assertion: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrant)
	form.Set("assertion", signed)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp accessTokenResponse
	if err := doAuth(client, req, &resp); err != nil {
		return Token{}, err
	}
	tok := Token{Value: resp.AccessToken, UID: a.UID}
	if resp.ExpiresIn > 0 {
		tok.Expiry = now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return tok, nil
}

func doAuth(client *http.Client, req *http.Request, out any) error {
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("firestore auth: http %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
