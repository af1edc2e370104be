package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vacancy-watch/poster/internal/models"
)

const listingPage = `<html><body>
<div id="pjax-jobs-list">
  <div class="card card-hover card-visited wordwrap job-link js-job-link-blank" id="job-1">
    <h2 class="my-0"><a href="/jobs/5551001/" title="Junior Go Developer">Junior Go Developer</a></h2>
    <div><span class="strong-600">25 000 – 35 000 грн</span></div>
    <div class="mt-xs"><span class="strong-600">Acme Soft</span> <span>Київ</span></div>
  </div>
  <div class="card job-link" id="job-2">
    <h2 class="my-0"><a href="https://www.work.ua/jobs/5551002/">QA Trainee</a></h2>
    <div class="mt-xs"><span class="strong-600">Testers LLC</span></div>
  </div>
  <div class="card job-link" id="job-3">
    <h2 class="my-0"></h2>
    <div class="mt-xs"><span class="strong-600">No Title Inc</span></div>
  </div>
  <div class="card job-link" id="job-4">
    <h2 class="my-0"><a>Support Intern</a></h2>
  </div>
  <div class="card promo">
    <h2 class="my-0"><a href="/promo/">Not a listing</a></h2>
  </div>
</div>
</body></html>`

const descriptionPage = `<html><body>
<div class="card wordwrap">fallback block</div>
<div id="job-description">
  <p>Шукаємо <b>Junior Go</b> розробника.</p>
  <ul><li>Go</li><li>SQL</li></ul>
  <script>track()</script>
</div>
</body></html>`

func parse(t *testing.T, page string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)
	return doc
}

func TestParseListings(t *testing.T) {
	base, _ := url.Parse("https://www.work.ua/jobs-junior/")
	got := ParseListings(parse(t, listingPage), base)

	assert.Equal(t, []models.RawListing{
		{Title: "Junior Go Developer", Company: "Acme Soft", Link: "https://www.work.ua/jobs/5551001/", Salary: "25 000 – 35 000 грн"},
		{Title: "QA Trainee", Company: "Testers LLC", Link: "https://www.work.ua/jobs/5551002/"},
		{Title: "Support Intern"},
	}, got)
}

func TestParseDescription(t *testing.T) {
	assert.Equal(t, "Шукаємо\nJunior Go\nрозробника.\nGo\nSQL", ParseDescription(parse(t, descriptionPage)))
}

func TestParseDescription_Fallback(t *testing.T) {
	doc := parse(t, `<div class="card wordwrap"><p>Опис</p> <p>вакансії</p></div>`)
	assert.Equal(t, "Опис\nвакансії", ParseDescription(doc))
}

func TestParseDescription_Missing(t *testing.T) {
	assert.Empty(t, ParseDescription(parse(t, `<html><body><p>nothing</p></body></html>`)))
}

func TestWorkUA_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(listingPage))
	}))
	defer srv.Close()

	s, err := NewWorkUA(srv.URL+"/jobs-junior/", nil)
	require.NoError(t, err)

	got, err := s.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, srv.URL+"/jobs/5551001/", got[0].Link)
}

func TestWorkUA_FetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s, err := NewWorkUA(srv.URL, nil)
	require.NoError(t, err)
	_, err = s.Fetch(context.Background())
	assert.ErrorContains(t, err, "unexpected status 503")
}

func TestNewWorkUA_RejectsRelativeURL(t *testing.T) {
	_, err := NewWorkUA("/jobs-junior/", nil)
	assert.Error(t, err)
}

func TestDescriptions_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(descriptionPage))
	}))
	defer srv.Close()

	d := NewDescriptions(nil)
	text, err := d.Fetch(context.Background(), srv.URL+"/jobs/1/")
	require.NoError(t, err)
	assert.Contains(t, text, "Junior Go")

	_, err = d.Fetch(context.Background(), srv.URL+"/gone/")
	assert.Error(t, err)
}

func TestFeed_FetchError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := NewFeed(addr + "/rss").Fetch(context.Background())
	assert.Error(t, err)
}
