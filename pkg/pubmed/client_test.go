package pubmed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const esearchResponse = `{
	"esearchresult": {
		"count": "2",
		"idlist": ["21292285", "22095980"]
	}
}`

const efetchResponse = `<?xml version="1.0" ?>
<PubmedArticleSet>
	<PubmedArticle>
		<MedlineCitation>
			<PMID>21292285</PMID>
			<Article>
				<Journal>
					<JournalIssue>
						<PubDate><Year>2011</Year></PubDate>
					</JournalIssue>
					<Title>Lancet</Title>
				</Journal>
				<ArticleTitle>Efficacy and safety of belimumab in patients with active systemic lupus erythematosus (BLISS-52).</ArticleTitle>
				<Abstract>
					<AbstractText Label="BACKGROUND">Belimumab inhibits B-lymphocyte stimulator.</AbstractText>
					<AbstractText Label="FINDINGS">SRI-4 response at week 52 was 57.6% vs 43.6% (p=0.0006).</AbstractText>
				</Abstract>
			</Article>
		</MedlineCitation>
		<PubmedData>
			<ArticleIdList>
				<ArticleId IdType="pubmed">21292285</ArticleId>
				<ArticleId IdType="doi">10.1016/S0140-6736(10)61354-2</ArticleId>
				<ArticleId IdType="pmc">PMC3272302</ArticleId>
			</ArticleIdList>
		</PubmedData>
	</PubmedArticle>
</PubmedArticleSet>`

const pmcResponse = `<?xml version="1.0" ?>
<pmc-articleset>
	<article>
		<front><article-meta><title-group><article-title>BLISS-52</article-title></title-group></article-meta></front>
		<body>
			<sec>
				<title>Methods</title>
				<p>Patients were randomised to belimumab 10 mg/kg or placebo.</p>
			</sec>
			<sec>
				<title>Results</title>
				<p>SRI-4 response was higher with belimumab (57.6% vs 43.6%).</p>
			</sec>
		</body>
	</article>
</pmc-articleset>`

func TestSearchArticles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/esearch.fcgi":
			assert.Equal(t, "pubmed", r.URL.Query().Get("db"))
			assert.Contains(t, r.URL.Query().Get("term"), "belimumab")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(esearchResponse))
		case "/efetch.fcgi":
			assert.Equal(t, "21292285,22095980", r.URL.Query().Get("id"))
			w.Header().Set("Content-Type", "text/xml")
			_, _ = w.Write([]byte(efetchResponse))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	articles, err := client.SearchArticles(context.Background(), "belimumab BLISS-52")
	require.NoError(t, err)
	require.Len(t, articles, 1)

	a := articles[0]
	assert.Equal(t, "21292285", a.PMID)
	assert.Equal(t, "PMC3272302", a.PMCID)
	assert.Equal(t, "10.1016/S0140-6736(10)61354-2", a.DOI)
	assert.Equal(t, "Lancet", a.Journal)
	assert.Equal(t, 2011, a.Year)
	assert.Contains(t, a.Title, "BLISS-52")
	assert.Contains(t, a.Abstract, "BACKGROUND: Belimumab")
	assert.Contains(t, a.Abstract, "FINDINGS: SRI-4 response")
	assert.True(t, a.HasFullText())
}

func TestSearchArticles_NoHits(t *testing.T) {
	var efetchCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/efetch.fcgi" {
			efetchCalls.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"esearchresult":{"count":"0","idlist":[]}}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	articles, err := client.SearchArticles(context.Background(), "no such trial")
	require.NoError(t, err)
	assert.Empty(t, articles)
	assert.Equal(t, int32(0), efetchCalls.Load(), "efetch should not run with no PMIDs")
}

func TestFetchFullText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/efetch.fcgi", r.URL.Path)
		assert.Equal(t, "pmc", r.URL.Query().Get("db"))
		assert.Equal(t, "3272302", r.URL.Query().Get("id"), "PMC prefix should be stripped")
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(pmcResponse))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	text, err := client.FetchFullText(context.Background(), "PMC3272302")
	require.NoError(t, err)
	assert.Contains(t, text, "Patients were randomised")
	assert.Contains(t, text, "SRI-4 response was higher")
	assert.NotContains(t, text, "<p>")
	assert.NotContains(t, text, "article-title", "front matter must stay out of the body text")
}

func TestAPIKeyParam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret-key", r.URL.Query().Get("api_key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"esearchresult":{"count":"0","idlist":[]}}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithAPIKey("secret-key"))
	_, err := client.SearchArticles(context.Background(), "anything")
	require.NoError(t, err)
}

func TestGet_RetriesTransient(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := attempts.Add(1)
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"esearchresult":{"count":"0","idlist":[]}}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.SearchArticles(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, int32(2), attempts.Load())
}
