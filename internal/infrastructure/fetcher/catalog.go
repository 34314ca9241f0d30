package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/baechuer/seatwatch/internal/domain"
	"github.com/baechuer/seatwatch/internal/pkg/retry"
	"github.com/rs/zerolog"
)

// maxScrollPages bounds scrollId pagination against an upstream that never stops.
const maxScrollPages = 50

var errNoClasses = errors.New("response has no classes field")

type CatalogConfig struct {
	APIURL     string
	Timeout    time.Duration
	MaxRetries int
}

// CatalogFetcher checks ByCatalog requests against the public class search API.
type CatalogFetcher struct {
	apiURL string
	client *http.Client
	retry  *retry.Config
	lg     zerolog.Logger
}

func NewCatalogFetcher(cfg CatalogConfig, lg zerolog.Logger) *CatalogFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &CatalogFetcher{
		apiURL: cfg.APIURL,
		client: &http.Client{Timeout: cfg.Timeout},
		retry:  retry.DefaultConfig(cfg.MaxRetries),
		lg:     lg.With().Str("component", "catalog_fetcher").Logger(),
	}
}

func (f *CatalogFetcher) Kind() domain.Kind { return domain.KindByCatalog }

// Section is one class section as returned by the search API.
type Section struct {
	ClassNumber   string
	CatalogNumber string
	Subject       string
	Title         string
	Instructor    string
	Days          string
	Time          string
	Location      string
	Enrolled      int
	Capacity      int
}

func (s Section) Open() int { return s.Capacity - s.Enrolled }

func (s Section) Label() string {
	if s.ClassNumber == "" {
		return s.Title
	}
	return fmt.Sprintf("#%s %s", s.ClassNumber, s.Title)
}

func (s Section) Details() domain.Details {
	return domain.Details{
		Title:      s.Title,
		Instructor: s.Instructor,
		Days:       s.Days,
		Time:       s.Time,
		Location:   s.Location,
	}
}

// Check reports the best section of subject+catalog number across every result
// page. It never returns an error: failures become Transient results. When a later
// page fails, seats already seen still count, but "full" cannot be concluded.
func (f *CatalogFetcher) Check(ctx context.Context, req domain.TrackingRequest) domain.FetchResult {
	if req.Kind != domain.KindByCatalog {
		return domain.Transient("catalog fetcher cannot check %s requests", req.Kind)
	}

	sections, err := f.Search(ctx, req.Subject, req.CatalogNumber, req.Term)
	if err != nil {
		f.lg.Warn().Err(err).Str("request_id", req.ID).Str("class", req.Label()).Int("sections_read", len(sections)).Msg("catalog check failed")
		if res := aggregate(sections); res.Open() {
			return res
		}
		return domain.Transient("catalog api: %v", err)
	}
	return aggregate(sections)
}

// aggregate folds all sections into one result: the section with the most open seats wins.
func aggregate(sections []Section) domain.FetchResult {
	if len(sections) == 0 {
		return domain.NotFound("no sections found")
	}
	best := sections[0]
	for _, s := range sections[1:] {
		if s.Open() > best.Open() {
			best = s
		}
	}
	if best.Open() <= 0 {
		return domain.Unavailable(best.Title)
	}
	return domain.Available(best.Open(), best.Label(), best.Title)
}

// Search lists every section matching subject (and catalogNbr when non-empty), following
// scrollId pagination until total is reached.
func (f *CatalogFetcher) Search(ctx context.Context, subject, catalogNbr, term string) ([]Section, error) {
	q := catalogQuery(subject, catalogNbr, term)

	page, err := f.fetchPage(ctx, q, "")
	if err != nil {
		return nil, err
	}
	out := page.sections()

	scrollID := page.ScrollID
	for i := 0; scrollID != "" && len(out) < page.Total.Value && i < maxScrollPages; i++ {
		next, err := f.fetchPage(ctx, q, scrollID)
		if err != nil {
			return out, err
		}
		more := next.sections()
		if len(more) == 0 {
			break
		}
		out = append(out, more...)
		scrollID = next.ScrollID
	}
	return out, nil
}

// Describe returns display metadata for the first matching section.
func (f *CatalogFetcher) Describe(ctx context.Context, req domain.TrackingRequest) (domain.Details, error) {
	page, err := f.fetchPage(ctx, catalogQuery(req.Subject, req.CatalogNumber, req.Term), "")
	if err != nil {
		return domain.Details{}, err
	}
	sections := page.sections()
	if len(sections) == 0 {
		return domain.Details{}, domain.ErrUpstreamNotFound(fmt.Sprintf("%s not found for %s", req.Label(), domain.TermName(req.Term)))
	}
	return sections[0].Details(), nil
}

func catalogQuery(subject, catalogNbr, term string) url.Values {
	q := url.Values{}
	q.Set("refine", "Y")
	q.Set("campusOrOnlineSelection", "A")
	q.Set("honors", "F")
	q.Set("promod", "F")
	q.Set("searchType", "all")
	q.Set("subject", strings.ToUpper(subject))
	q.Set("term", term)
	if catalogNbr != "" {
		q.Set("catalogNbr", catalogNbr)
	}
	return q
}

func (f *CatalogFetcher) fetchPage(ctx context.Context, q url.Values, scrollID string) (*searchPage, error) {
	if scrollID != "" {
		q = cloneValues(q)
		q.Set("scrollId", scrollID)
	}
	target := f.apiURL + "?" + q.Encode()

	var page *searchPage
	err := retry.Retry(ctx, f.retry, func(ctx context.Context) error {
		p, err := f.get(ctx, target)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (f *CatalogFetcher) get(ctx context.Context, target string) (*searchPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	// The public API rejects requests without an Authorization header.
	req.Header.Set("Authorization", "Bearer null")
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("catalog api returned %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, retry.Permanent(fmt.Errorf("catalog api returned %d", resp.StatusCode))
	}

	var page searchPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, retry.Permanent(fmt.Errorf("decode catalog response: %w", err))
	}
	if page.Classes == nil {
		return nil, retry.Permanent(errNoClasses)
	}
	return &page, nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

type searchPage struct {
	Classes  *[]classItem `json:"classes"`
	ScrollID string       `json:"scrollId"`
	Total    struct {
		Value int `json:"value"`
	} `json:"total"`
}

type classItem struct {
	CLAS classRow `json:"CLAS"`
}

type classRow struct {
	ClassNbr    flexString  `json:"CLASSNBR"`
	CatalogNbr  flexString  `json:"CATALOGNBR"`
	Subject     flexString  `json:"SUBJECT"`
	Title       flexString  `json:"TITLE"`
	Instructors flexStrings `json:"INSTRUCTORSLIST"`
	Days        flexString  `json:"DAYS"`
	StartTime   flexString  `json:"STARTTIME"`
	EndTime     flexString  `json:"ENDTIME"`
	Location    flexString  `json:"LOCATION"`
	EnrlCap     flexInt     `json:"ENRLCAP"`
	EnrlTot     flexInt     `json:"ENRLTOT"`
}

func (p *searchPage) sections() []Section {
	if p.Classes == nil {
		return nil
	}
	out := make([]Section, 0, len(*p.Classes))
	for _, item := range *p.Classes {
		out = append(out, item.CLAS.section())
	}
	return out
}

func (c classRow) section() Section {
	instructor := strings.Join(c.Instructors, ", ")
	if instructor == "" {
		instructor = "TBA"
	}
	start := cleanTime(string(c.StartTime))
	end := cleanTime(string(c.EndTime))
	when := "TBA"
	if start != "" {
		when = start + "-" + end
	}
	return Section{
		ClassNumber:   string(c.ClassNbr),
		CatalogNumber: string(c.CatalogNbr),
		Subject:       string(c.Subject),
		Title:         orDefault(string(c.Title), "Unknown"),
		Instructor:    instructor,
		Days:          orDefault(string(c.Days), "TBA"),
		Time:          when,
		Location:      orDefault(string(c.Location), "TBA"),
		Enrolled:      int(c.EnrlTot),
		Capacity:      int(c.EnrlCap),
	}
}

func cleanTime(s string) string {
	s = strings.ReplaceAll(s, "<br/>", "")
	s = strings.ReplaceAll(s, "&nbsp;", "")
	return strings.TrimSpace(s)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return strings.TrimSpace(s)
}

// flexString accepts a JSON string, number or null.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*s = ""
	case string:
		*s = flexString(t)
	case float64:
		*s = flexString(strconv.FormatFloat(t, 'f', -1, 64))
	default:
		*s = flexString(strings.Trim(string(b), `"`))
	}
	return nil
}

// flexStrings accepts a single string or a list of strings.
type flexStrings []string

func (s *flexStrings) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*s = list
		return nil
	}
	var one flexString
	if err := one.UnmarshalJSON(b); err != nil {
		return err
	}
	if one == "" {
		*s = nil
		return nil
	}
	*s = []string{string(one)}
	return nil
}

// flexInt accepts a JSON number, a numeric string, or null (zero).
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if strings.TrimSpace(string(s)) == "" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
	if err != nil {
		return fmt.Errorf("not a number: %q", string(s))
	}
	*n = flexInt(v)
	return nil
}
