/*
Package wordpress is a small client for the WordPress REST API.

It covers the calls the publisher needs: resolving category and tag names to
term ids (lookup, then create when absent), uploading a featured image to the
media library and creating a post. Every request authenticates with the
target's username and application password.
*/
package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Nexora-Open-Source/feed-republisher/cache"
	"github.com/Nexora-Open-Source/feed-republisher/types"
	"github.com/sirupsen/logrus"
)

const (
	apiPrefix = "/wp-json/wp/v2"

	// Taxonomies
	Categories = "categories"
	Tags       = "tags"

	// DefaultTimeout bounds one REST call.
	DefaultTimeout = 20 * time.Second

	maxErrorBody = 500
)

// APIError is a non-2xx answer from a target.
type APIError struct {
	Target     string
	Endpoint   string
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Target, e.Endpoint, e.StatusCode, e.Body)
}

// Post is the body of a post creation request.
type Post struct {
	Title         string `json:"title"`
	Content       string `json:"content"`
	Status        string `json:"status"`
	Slug          string `json:"slug"`
	Categories    []int  `json:"categories"`
	Tags          []int  `json:"tags"`
	DateGMT       string `json:"date_gmt,omitempty"`
	FeaturedMedia int    `json:"featured_media,omitempty"`
}

// PostResult is the part of the created post the caller needs.
type PostResult struct {
	ID   int    `json:"id"`
	Link string `json:"link"`
}

type term struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type errorBody struct {
	Code string `json:"code"`
	Data struct {
		TermID int `json:"term_id"`
	} `json:"data"`
}

// Client talks to any number of WordPress sites over a shared HTTP client.
type Client struct {
	http    *http.Client
	timeout time.Duration
	terms   cache.TermCache
	logger  *logrus.Logger
}

// NewClient creates a client. terms may be nil to disable caching.
func NewClient(httpClient *http.Client, timeout time.Duration, terms cache.TermCache, logger *logrus.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{http: httpClient, timeout: timeout, terms: terms, logger: logger}
}

// FormatDate renders t the way the date_gmt field expects it.
func FormatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05")
}

// ResolveCategory returns the id of a category, creating it when absent.
func (c *Client) ResolveCategory(ctx context.Context, target types.Target, name string) (int, error) {
	return c.ResolveTerm(ctx, target, Categories, name)
}

// ResolveTerm returns the id of a term of taxonomy, creating it when absent.
// A name made of digits only is taken as an id.
func (c *Client) ResolveTerm(ctx context.Context, target types.Target, taxonomy, name string) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("empty %s name", taxonomy)
	}
	if id, err := strconv.Atoi(name); err == nil && id > 0 {
		return id, nil
	}
	if c.terms != nil {
		if id, ok := c.terms.Get(target.APIBase(), taxonomy, name); ok {
			return id, nil
		}
	}

	id, err := c.lookupTerm(ctx, target, taxonomy, name)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		c.logger.WithFields(logrus.Fields{
			"target":   target.APIBase(),
			"taxonomy": taxonomy,
			"name":     name,
		}).Warn("Term not found, creating it")
		id, err = c.createTerm(ctx, target, taxonomy, name)
		if err != nil {
			return 0, err
		}
	}

	if c.terms != nil {
		c.terms.Set(target.APIBase(), taxonomy, name, id)
	}
	return id, nil
}

// lookupTerm searches by name. An exact match wins over the first search hit.
func (c *Client) lookupTerm(ctx context.Context, target types.Target, taxonomy, name string) (int, error) {
	q := url.Values{}
	q.Set("search", name)
	q.Set("per_page", "100")

	var terms []term
	if err := c.doJSON(ctx, target, http.MethodGet, "/"+taxonomy+"?"+q.Encode(), nil, &terms); err != nil {
		return 0, err
	}
	if len(terms) == 0 {
		return 0, nil
	}
	for _, t := range terms {
		if strings.EqualFold(html.UnescapeString(t.Name), name) {
			return t.ID, nil
		}
	}
	return terms[0].ID, nil
}

func (c *Client) createTerm(ctx context.Context, target types.Target, taxonomy, name string) (int, error) {
	var created term
	err := c.doJSON(ctx, target, http.MethodPost, "/"+taxonomy, map[string]string{"name": name}, &created)
	if err != nil {
		// a concurrent publisher created it first
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == "term_exists" {
			var body errorBody
			if json.Unmarshal([]byte(apiErr.Body), &body) == nil && body.Data.TermID > 0 {
				return body.Data.TermID, nil
			}
		}
		return 0, err
	}
	if created.ID == 0 {
		return 0, fmt.Errorf("%s: created %s %q without id", target.APIBase(), taxonomy, name)
	}
	c.logger.WithFields(logrus.Fields{
		"target":   target.APIBase(),
		"taxonomy": taxonomy,
		"name":     name,
		"id":       created.ID,
	}).Info("Created term")
	return created.ID, nil
}

// CreatePost submits a post.
func (c *Client) CreatePost(ctx context.Context, target types.Target, post *Post) (*PostResult, error) {
	var result PostResult
	if err := c.doJSON(ctx, target, http.MethodPost, "/posts", post, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// doJSON sends body as JSON and decodes a 2xx answer into out.
func (c *Client) doJSON(ctx context.Context, target types.Target, method, endpoint string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.APIBase()+apiPrefix+endpoint, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(target.Username, target.Password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, target, endpoint, out)
}

func (c *Client) do(req *http.Request, target types.Target, endpoint string, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", target.APIBase(), endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{
			Target:     target.APIBase(),
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		}
		var decoded errorBody
		if json.Unmarshal(raw, &decoded) == nil {
			apiErr.Code = decoded.Code
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: invalid response: %w", target.APIBase(), endpoint, err)
	}
	return nil
}
