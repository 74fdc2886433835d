// Package pubmed is a client for the NCBI E-utilities API. It searches
// PubMed for articles and retrieves full text from PubMed Central where a
// PMCID exists.
package pubmed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/vantdge/evidence-cli/internal/resilience"
)

const (
	defaultBaseURL    = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	defaultMaxResults = 10

	// NCBI allows 3 req/s without an API key and 10 req/s with one.
	rpsWithoutKey = 3
	rpsWithKey    = 10
)

// Client defines the publication operations used by extraction.
type Client interface {
	SearchArticles(ctx context.Context, query string) ([]Article, error)
	FetchFullText(ctx context.Context, pmcid string) (string, error)
}

// Article is one PubMed record.
type Article struct {
	PMID     string
	PMCID    string
	DOI      string
	Title    string
	Abstract string
	Journal  string
	Year     int
}

// HasFullText reports whether the article has an open-access PMC record.
func (a Article) HasFullText() bool {
	return a.PMCID != ""
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default E-utilities base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithAPIKey sets an NCBI API key, raising the rate allowance.
func WithAPIKey(key string) Option {
	return func(c *httpClient) {
		c.apiKey = key
		c.limiter = rate.NewLimiter(rate.Limit(rpsWithKey), 1)
	}
}

// WithMaxResults caps how many articles a search returns.
func WithMaxResults(n int) Option {
	return func(c *httpClient) { c.maxResults = n }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	baseURL    string
	apiKey     string
	maxResults int
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
	http       *http.Client
}

// NewClient creates an E-utilities client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:    defaultBaseURL,
		maxResults: defaultMaxResults,
		limiter:    rate.NewLimiter(rate.Limit(rpsWithoutKey), 1),
		retry:      resilience.DefaultRetryConfig(),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SearchArticles runs an ESearch query and fetches the matching records.
func (c *httpClient) SearchArticles(ctx context.Context, query string) ([]Article, error) {
	pmids, err := c.esearch(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(pmids) == 0 {
		return nil, nil
	}
	return c.efetch(ctx, pmids)
}

func (c *httpClient) esearch(ctx context.Context, query string) ([]string, error) {
	params := url.Values{
		"db":      {"pubmed"},
		"term":    {query},
		"retmax":  {strconv.Itoa(c.maxResults)},
		"retmode": {"json"},
		"sort":    {"relevance"},
	}

	body, err := c.get(ctx, "/esearch.fcgi", params)
	if err != nil {
		return nil, err
	}

	var result struct {
		ESearchResult struct {
			IDList []string `json:"idlist"`
		} `json:"esearchresult"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "pubmed: unmarshal esearch response")
	}
	return result.ESearchResult.IDList, nil
}

func (c *httpClient) efetch(ctx context.Context, pmids []string) ([]Article, error) {
	params := url.Values{
		"db":      {"pubmed"},
		"id":      {strings.Join(pmids, ",")},
		"retmode": {"xml"},
	}

	body, err := c.get(ctx, "/efetch.fcgi", params)
	if err != nil {
		return nil, err
	}

	var set articleSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, eris.Wrap(err, "pubmed: unmarshal efetch response")
	}

	out := make([]Article, 0, len(set.Articles))
	for _, wa := range set.Articles {
		out = append(out, wa.toArticle())
	}
	return out, nil
}

// FetchFullText retrieves the body text of a PMC article. Markup is
// stripped; section boundaries become blank lines.
func (c *httpClient) FetchFullText(ctx context.Context, pmcid string) (string, error) {
	params := url.Values{
		"db":      {"pmc"},
		"id":      {strings.TrimPrefix(pmcid, "PMC")},
		"retmode": {"xml"},
	}

	body, err := c.get(ctx, "/efetch.fcgi", params)
	if err != nil {
		return "", err
	}

	text, err := extractBodyText(body)
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("pubmed: extract full text %s", pmcid))
	}
	return text, nil
}

func (c *httpClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "pubmed: rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
		if err != nil {
			return nil, eris.Wrap(err, "pubmed: create request")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "pubmed: send request")
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "pubmed: read response")
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case resilience.IsTransientHTTPStatus(resp.StatusCode):
			return nil, resilience.NewTransientError(
				eris.Errorf("pubmed: transient status %d: %s", resp.StatusCode, string(body)),
				resp.StatusCode,
			)
		default:
			return nil, eris.Errorf("pubmed: unexpected status %d: %s", resp.StatusCode, string(body))
		}
	})
}

// extractBodyText walks a PMC article XML document and concatenates the
// character data inside its <body> element.
func extractBodyText(doc []byte) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(string(doc)))
	dec.Strict = false

	var sb strings.Builder
	depth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "body" || depth > 0 {
				depth++
			}
		case xml.EndElement:
			if depth > 0 {
				depth--
				if t.Name.Local == "p" || t.Name.Local == "sec" || t.Name.Local == "title" {
					sb.WriteString("\n")
				}
			}
		case xml.CharData:
			if depth > 0 {
				sb.Write(t)
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
