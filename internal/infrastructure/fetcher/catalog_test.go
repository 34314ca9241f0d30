package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/baechuer/seatwatch/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T, h http.HandlerFunc) *CatalogFetcher {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	f := NewCatalogFetcher(CatalogConfig{APIURL: srv.URL, Timeout: 2 * time.Second, MaxRetries: 2}, zerolog.Nop())
	f.retry.InitialDelay = time.Millisecond
	f.retry.MaxDelay = 2 * time.Millisecond
	return f
}

func cseRequest() domain.TrackingRequest {
	return domain.NewCatalogRequest("42", "alice", "100", "cse", "205", "2261", time.Now())
}

const twoSections = `{
  "classes": [
    {"CLAS": {"CLASSNBR": "12001", "TITLE": "Object-Oriented Programming", "ENRLCAP": "150", "ENRLTOT": "150",
              "INSTRUCTORSLIST": ["Ada Lovelace"], "DAYS": "MW", "STARTTIME": "9:00 AM<br/>", "ENDTIME": "10:15 AM", "LOCATION": "BYENG 210"}},
    {"CLAS": {"CLASSNBR": 12002, "TITLE": "Object-Oriented Programming", "ENRLCAP": 100, "ENRLTOT": 97,
              "INSTRUCTORSLIST": "Grace Hopper"}}
  ],
  "total": {"value": 2}
}`

func TestCatalogFetcher_Check_SendsQueryAndPicksBestSection(t *testing.T) {
	f := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer null", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "CSE", q.Get("subject"))
		assert.Equal(t, "205", q.Get("catalogNbr"))
		assert.Equal(t, "2261", q.Get("term"))
		assert.Equal(t, "Y", q.Get("refine"))
		assert.Equal(t, "all", q.Get("searchType"))
		fmt.Fprint(w, twoSections)
	})

	res := f.Check(context.Background(), cseRequest())

	assert.Equal(t, domain.FetchAvailable, res.Status)
	assert.Equal(t, 3, res.SeatsOpen)
	assert.Equal(t, "#12002 Object-Oriented Programming", res.SectionLabel)
}

func TestCatalogFetcher_Check_FullIsUnavailable(t *testing.T) {
	f := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"classes":[{"CLAS":{"CLASSNBR":"1","TITLE":"X","ENRLCAP":"30","ENRLTOT":"31"}}]}`)
	})

	res := f.Check(context.Background(), cseRequest())
	assert.Equal(t, domain.FetchUnavailable, res.Status)
	assert.Equal(t, 0, res.SeatsOpen)
}

func TestCatalogFetcher_Check_NoRowsIsNotFound(t *testing.T) {
	f := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"classes":[],"total":{"value":0}}`)
	})

	assert.Equal(t, domain.FetchNotFound, f.Check(context.Background(), cseRequest()).Status)
}

func TestCatalogFetcher_Check_TransientCases(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"html body": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "<html>maintenance</html>")
		},
		"missing classes": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"error":"oops"}`)
		},
		"bad request": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		},
		"always 503": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			f := newTestCatalog(t, h)
			res := f.Check(context.Background(), cseRequest())
			assert.Equal(t, domain.FetchTransient, res.Status)
			assert.NotEmpty(t, res.Detail)
		})
	}
}

func TestCatalogFetcher_Check_RetriesServerErrors(t *testing.T) {
	var calls int32
	f := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, twoSections)
	})

	res := f.Check(context.Background(), cseRequest())

	assert.Equal(t, domain.FetchAvailable, res.Status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCatalogFetcher_Check_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	f := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	})

	_ = f.Check(context.Background(), cseRequest())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCatalogFetcher_Search_FollowsScrollID(t *testing.T) {
	f := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("scrollId") {
		case "":
			fmt.Fprint(w, `{"classes":[{"CLAS":{"CLASSNBR":"1","CATALOGNBR":"110","TITLE":"A"}}],"scrollId":"s1","total":{"value":3}}`)
		case "s1":
			fmt.Fprint(w, `{"classes":[{"CLAS":{"CLASSNBR":"2","CATALOGNBR":"205","TITLE":"B"}}],"scrollId":"s2","total":{"value":3}}`)
		case "s2":
			fmt.Fprint(w, `{"classes":[{"CLAS":{"CLASSNBR":"3","CATALOGNBR":"240","TITLE":"C"}}],"scrollId":"s3","total":{"value":3}}`)
		default:
			t.Errorf("unexpected scrollId %q", r.URL.Query().Get("scrollId"))
		}
	})

	sections, err := f.Search(context.Background(), "cse", "", "2261")

	require.NoError(t, err)
	require.Len(t, sections, 3)
	assert.Equal(t, "240", sections[2].CatalogNumber)
}

func scrolledSections(t *testing.T, lastPage func(w http.ResponseWriter)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("scrollId") {
		case "":
			fmt.Fprint(w, `{"classes":[{"CLAS":{"CLASSNBR":"12001","TITLE":"OOP","ENRLCAP":50,"ENRLTOT":50}}],"scrollId":"s1","total":{"value":2}}`)
		case "s1":
			lastPage(w)
		default:
			t.Errorf("unexpected scrollId %q", r.URL.Query().Get("scrollId"))
		}
	}
}

func TestCatalogFetcher_Check_CountsLaterPages(t *testing.T) {
	f := newTestCatalog(t, scrolledSections(t, func(w http.ResponseWriter) {
		fmt.Fprint(w, `{"classes":[{"CLAS":{"CLASSNBR":"12002","TITLE":"OOP","ENRLCAP":50,"ENRLTOT":46}}],"scrollId":"s2","total":{"value":2}}`)
	}))

	res := f.Check(context.Background(), cseRequest())

	assert.Equal(t, domain.FetchAvailable, res.Status)
	assert.Equal(t, 4, res.SeatsOpen)
	assert.Equal(t, "#12002 OOP", res.SectionLabel)
}

func TestCatalogFetcher_Check_LaterPageFailureIsTransient(t *testing.T) {
	f := newTestCatalog(t, scrolledSections(t, func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	res := f.Check(context.Background(), cseRequest())

	// the first page was full, but the unread page may hold open seats
	assert.Equal(t, domain.FetchTransient, res.Status)
}

func TestCatalogFetcher_Describe(t *testing.T) {
	f := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, twoSections)
	})

	d, err := f.Describe(context.Background(), cseRequest())

	require.NoError(t, err)
	assert.Equal(t, "Object-Oriented Programming", d.Title)
	assert.Equal(t, "Ada Lovelace", d.Instructor)
	assert.Equal(t, "9:00 AM-10:15 AM", d.Time)
	assert.Equal(t, "BYENG 210", d.Location)
}

func TestCatalogFetcher_Describe_NotFound(t *testing.T) {
	f := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"classes":[]}`)
	})

	_, err := f.Describe(context.Background(), cseRequest())
	assert.True(t, domain.HasCode(err, domain.CodeUpstreamNotFound))
}

func TestSection_DefaultsForMissingFields(t *testing.T) {
	s := classRow{}.section()
	assert.Equal(t, "TBA", s.Instructor)
	assert.Equal(t, "TBA", s.Time)
	assert.Equal(t, "TBA", s.Days)
	assert.Equal(t, "Unknown", s.Title)
}
