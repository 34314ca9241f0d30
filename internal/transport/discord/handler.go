package discord

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/baechuer/seatwatch/internal/application/tracking"
	"github.com/baechuer/seatwatch/internal/domain"
	"github.com/baechuer/seatwatch/internal/infrastructure/fetcher"
)

// Registry is the slice of tracking.Registry the chat commands drive.
type Registry interface {
	Add(ctx context.Context, in tracking.AddInput) (tracking.AddResult, error)
	Remove(ctx context.Context, owner string, index int) (domain.TrackingRequest, error)
	List(ctx context.Context, owner string) []domain.TrackingRequest
	ListAll(ctx context.Context) []domain.TrackingRequest
	Clear(ctx context.Context, owner string) (int, error)
	Stats(ctx context.Context) tracking.Stats
	DefaultTerm() string
	MaxRequestsPerUser() int
}

// Searcher lists catalog sections for /searchclass.
type Searcher interface {
	Search(ctx context.Context, subject, catalogNbr, term string) ([]fetcher.Section, error)
}

type SweepReporter interface {
	LastReport() tracking.SweepReport
}

// Command is one slash-command invocation, already stripped of gateway details.
type Command struct {
	Name      string
	UserID    string
	Username  string
	ChannelID string
	Strings   map[string]string
	Ints      map[string]int64
}

func (c Command) str(name string) string { return strings.TrimSpace(c.Strings[name]) }

// Reply is what the bot answers with.
type Reply struct {
	Content string
	Embeds  []*discordgo.MessageEmbed
}

func text(format string, args ...any) Reply { return Reply{Content: fmt.Sprintf(format, args...)} }

func embed(e *discordgo.MessageEmbed) Reply { return Reply{Embeds: []*discordgo.MessageEmbed{e}} }

type HandlerConfig struct {
	CheckInterval time.Duration
	StartedAt     time.Time
	Guilds        func() int
}

// Handler turns commands into registry calls and chat replies.
type Handler struct {
	reg     Registry
	search  Searcher // nil => /searchclass unavailable
	sweeper SweepReporter
	cfg     HandlerConfig
	now     func() time.Time
	lg      zerolog.Logger
}

func NewHandler(reg Registry, search Searcher, sweeper SweepReporter, cfg HandlerConfig, lg zerolog.Logger) *Handler {
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now()
	}
	return &Handler{
		reg:     reg,
		search:  search,
		sweeper: sweeper,
		cfg:     cfg,
		now:     time.Now,
		lg:      lg.With().Str("component", "discord_commands").Logger(),
	}
}

func (h *Handler) Handle(ctx context.Context, c Command) Reply {
	switch c.Name {
	case cmdHelp:
		return h.help()
	case cmdCheck:
		return h.checkClass(ctx, c)
	case cmdCourse:
		return h.checkCourse(ctx, c)
	case cmdSearch:
		return h.searchClass(ctx, c)
	case cmdMine:
		return h.myRequests(ctx, c)
	case cmdRemove:
		return h.removeRequest(ctx, c)
	case cmdStop:
		return h.stopChecking(ctx, c)
	case cmdListAll:
		return h.listAll(ctx)
	case cmdStatus:
		return h.status(ctx)
	default:
		return text("❌ Unknown command `/%s`", c.Name)
	}
}

func (h *Handler) minutes() int {
	m := int(h.cfg.CheckInterval.Minutes())
	if m < 1 {
		m = 1
	}
	return m
}

func (h *Handler) help() Reply {
	term := h.reg.DefaultTerm()
	e := &discordgo.MessageEmbed{
		Title:       "🎓 Class Seat Tracker - Help",
		Description: "Track class availability and get notified when spots open up!",
		Color:       brandColor,
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Bot checks for availability every %d minutes", h.minutes())},
	}
	for _, f := range [][2]string{
		{"/checkclass <num> <subject> [term]", fmt.Sprintf("Track a class by number and subject\n  `/checkclass 205 CSE` (defaults to term %s)", term)},
		{"/checkcourse <course_id> [term]", "Track a course by its ID number\n  `/checkcourse 12345`"},
		{"/searchclass <subject> [course_num] [term]", "Search for classes\n  `/searchclass CSE`\n  `/searchclass CSE 205`"},
		{"/myrequests", "Show all your active tracking requests"},
		{"/removerequest <index>", "Remove a specific request by index\nUse `/myrequests` to see indices"},
		{"/stopchecking", "Remove ALL your tracking requests"},
		{"/listall", "Show all active tracking requests from all users"},
		{"/status", "Show bot status and statistics"},
	} {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: f[0], Value: f[1]})
	}
	return embed(e)
}

func (h *Handler) checkClass(ctx context.Context, c Command) Reply {
	in := tracking.AddInput{
		Kind:             domain.KindByCatalog,
		OwnerUserID:      c.UserID,
		OwnerDisplayName: c.Username,
		ChannelID:        c.ChannelID,
		Term:             c.str("term"),
		Subject:          c.str("class_subject"),
		CatalogNumber:    c.str("class_num"),
	}
	return h.add(ctx, in)
}

func (h *Handler) checkCourse(ctx context.Context, c Command) Reply {
	in := tracking.AddInput{
		Kind:             domain.KindByCourseID,
		OwnerUserID:      c.UserID,
		OwnerDisplayName: c.Username,
		ChannelID:        c.ChannelID,
		Term:             c.str("term"),
		CourseID:         c.str("course_id"),
	}
	return h.add(ctx, in)
}

func (h *Handler) add(ctx context.Context, in tracking.AddInput) Reply {
	res, err := h.reg.Add(ctx, in)
	if err != nil {
		return h.addError(in, err)
	}

	r := res.Request
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Now tracking **%s** (Term: %s)", displayTarget(r), r.Term)
	b.WriteString(detailLines(r))
	if res.Warning != "" {
		fmt.Fprintf(&b, "\n⚠️ %s. Double-check the numbers; I'll keep checking anyway.", res.Warning)
	}
	fmt.Fprintf(&b, "\n📭 You'll be notified here when spots open.\n_Checking every %d minutes_", h.minutes())
	return Reply{Content: b.String()}
}

func (h *Handler) addError(in tracking.AddInput, err error) Reply {
	var ae *domain.AppError
	if !errors.As(err, &ae) {
		h.lg.Error().Err(err).Str("user_id", in.OwnerUserID).Msg("add request failed")
		return text("❌ Failed to add tracking request. Please try again.")
	}

	switch ae.Code {
	case domain.CodeDuplicate:
		return text("⚠️ You're already tracking **%s** (Term: %s)\nUse `/myrequests` to see all your tracked requests.", inputTarget(in), orTerm(in.Term, h.reg.DefaultTerm()))
	case domain.CodeLimitExceeded:
		return text("❌ You've reached the limit of %d tracking requests. Remove some with `/removerequest` or `/stopchecking`.", h.reg.MaxRequestsPerUser())
	case domain.CodeValidation:
		return text("❌ %s", validationText(ae))
	default:
		h.lg.Error().Err(err).Str("user_id", in.OwnerUserID).Msg("add request failed")
		return text("❌ Failed to add tracking request. Please try again.")
	}
}

func inputTarget(in tracking.AddInput) string {
	if in.Kind == domain.KindByCatalog {
		return strings.ToUpper(strings.TrimSpace(in.Subject)) + " " + strings.TrimSpace(in.CatalogNumber)
	}
	return "Course ID: " + strings.TrimSpace(in.CourseID)
}

func orTerm(term, def string) string {
	if term == "" {
		return def
	}
	return term
}

var fieldHints = map[string]string{
	"class_num":     "Class number must be numeric (e.g., 205 or 112.5)",
	"class_subject": "Subject must be a valid code (e.g., CSE, MAT, ENG)",
	"course_id":     "Course ID must be numeric (e.g., 12345)",
	"term":          "Term must be 4 digits ending in 1, 4 or 7 (e.g., 2261 for Spring 2026)",
}

func validationText(ae *domain.AppError) string {
	if len(ae.Meta) == 0 {
		return ae.Message
	}
	keys := make([]string, 0, len(ae.Meta))
	for k := range ae.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		if hint, ok := fieldHints[k]; ok {
			lines = append(lines, hint)
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", k, ae.Meta[k]))
	}
	return strings.Join(lines, "\n")
}

func displayTarget(r domain.TrackingRequest) string {
	if r.Kind == domain.KindByCatalog {
		return r.Label()
	}
	return "Course ID: " + r.CourseID
}

func detailLines(r domain.TrackingRequest) string {
	var b strings.Builder
	if r.Title != "" {
		fmt.Fprintf(&b, "\n📚 **%s**", r.Title)
	}
	if known(r.Instructor) {
		fmt.Fprintf(&b, "\n👨‍🏫 %s", r.Instructor)
	}
	if known(r.Days) {
		fmt.Fprintf(&b, "\n🗓️ %s %s", r.Days, r.Time)
	}
	if known(r.Location) {
		fmt.Fprintf(&b, "\n📍 %s", r.Location)
	}
	return b.String()
}

func known(s string) bool { return s != "" && s != "TBA" }

func (h *Handler) myRequests(ctx context.Context, c Command) Reply {
	mine := h.reg.List(ctx, c.UserID)
	if len(mine) == 0 {
		return text("📭 You have no active tracking requests.\nUse `/checkclass` or `/checkcourse` to add some!")
	}

	e := &discordgo.MessageEmbed{
		Title:  fmt.Sprintf("📋 Your Tracking Requests (%d)", len(mine)),
		Color:  brandColor,
		Footer: &discordgo.MessageEmbedFooter{Text: "Use /removerequest <index> to remove a request"},
	}
	for i, r := range mine {
		title := r.Title
		if title == "" {
			title = "Unknown"
		}
		value := fmt.Sprintf("**%s**\nTerm: %s", title, r.Term)
		value += detailLines(domain.TrackingRequest{Instructor: r.Instructor, Days: r.Days, Time: r.Time, Location: r.Location})
		switch {
		case r.LastNotifiedAt != nil:
			value += "\n✅ Last notified: " + r.LastNotifiedAt.UTC().Format("2006-01-02 15:04")
		case r.LastCheckedAt != nil:
			value += "\n🔍 Last checked: " + r.LastCheckedAt.UTC().Format("2006-01-02 15:04")
		}
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("%d. %s", i, displayTarget(r)),
			Value: value,
		})
	}
	return embed(e)
}

func (h *Handler) removeRequest(ctx context.Context, c Command) Reply {
	index, ok := c.Ints["index"]
	if !ok {
		return text("❌ Missing index. Use `/myrequests` to see valid indices.")
	}

	mine := h.reg.List(ctx, c.UserID)
	if len(mine) == 0 {
		return text("📭 You have no active tracking requests.")
	}

	removed, err := h.reg.Remove(ctx, c.UserID, int(index))
	if err != nil {
		if domain.HasCode(err, domain.CodeNotFound) {
			return text("❌ Invalid index. Use `/myrequests` to see valid indices (0-%d).", len(mine)-1)
		}
		h.lg.Error().Err(err).Str("user_id", c.UserID).Msg("remove request failed")
		return text("❌ Failed to remove request. Please try again.")
	}
	return text("✅ Removed tracking request for **%s**", removed.Label())
}

func (h *Handler) stopChecking(ctx context.Context, c Command) Reply {
	n, err := h.reg.Clear(ctx, c.UserID)
	if err != nil {
		h.lg.Error().Err(err).Str("user_id", c.UserID).Msg("clear requests failed")
		return text("❌ Failed to remove your requests. Please try again.")
	}
	if n == 0 {
		return text("📭 You have no active tracking requests.")
	}
	return text("✅ Removed all **%d** tracking request(s).", n)
}

const listAllPerUser = 5

func (h *Handler) listAll(ctx context.Context) Reply {
	all := h.reg.ListAll(ctx)
	if len(all) == 0 {
		return text("📭 No active tracking requests.")
	}

	e := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("📊 All Active Tracking Requests (%d)", len(all)),
		Description: fmt.Sprintf("Checking every %d minutes", h.minutes()),
		Color:       accentColor,
	}

	order := []string{}
	byUser := map[string][]domain.TrackingRequest{}
	for _, r := range all {
		name := r.OwnerDisplayName
		if name == "" {
			name = r.OwnerUserID
		}
		if _, ok := byUser[name]; !ok {
			order = append(order, name)
		}
		byUser[name] = append(byUser[name], r)
	}

	for _, name := range order {
		reqs := byUser[name]
		var b strings.Builder
		for i, r := range reqs {
			if i == listAllPerUser {
				fmt.Fprintf(&b, "_...and %d more_\n", len(reqs)-listAllPerUser)
				break
			}
			title := r.Title
			if title == "" {
				title = "Unknown"
			}
			fmt.Fprintf(&b, "• **%s** - %s\n", r.Label(), truncate(title, 35))
			if known(r.Instructor) || known(r.Days) {
				fmt.Fprintf(&b, "  └ %s | %s\n", r.Instructor, r.Days)
			}
		}
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("%s (%d)", name, len(reqs)),
			Value: b.String(),
		})
	}
	return embed(e)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func (h *Handler) status(ctx context.Context) Reply {
	st := h.reg.Stats(ctx)
	up := h.now().Sub(h.cfg.StartedAt).Round(time.Second)

	guilds := "n/a"
	if h.cfg.Guilds != nil {
		guilds = fmt.Sprint(h.cfg.Guilds())
	}

	sweep := "⏳ Waiting for first sweep"
	if h.sweeper != nil {
		if rep := h.sweeper.LastReport(); rep.ID != "" {
			sweep = fmt.Sprintf("✅ %d checked, %d notified (%s ago)",
				rep.Visited, rep.Notified, h.now().Sub(rep.StartedAt).Round(time.Second))
		}
	}

	e := &discordgo.MessageEmbed{
		Title: "🤖 Bot Status",
		Color: brandColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Uptime", Value: up.String(), Inline: true},
			{Name: "Active Requests", Value: fmt.Sprint(st.TotalRequests), Inline: true},
			{Name: "Check Interval", Value: fmt.Sprintf("%d min", h.minutes()), Inline: true},
			{Name: "Users Tracking", Value: fmt.Sprint(st.Users), Inline: true},
			{Name: "Servers", Value: guilds, Inline: true},
			{Name: "Last Sweep", Value: sweep, Inline: false},
		},
	}
	return embed(e)
}

const (
	maxSearchSections = 20
	maxSearchCourses  = 25
)

func (h *Handler) searchClass(ctx context.Context, c Command) Reply {
	if h.search == nil {
		return text("❌ Class search is not available right now.")
	}

	subject := strings.ToUpper(c.str("subject"))
	num := c.str("course_num")
	term := orTerm(c.str("term"), h.reg.DefaultTerm())

	if subject == "" || len(subject) > 6 {
		return text("❌ %s", fieldHints["class_subject"])
	}
	if domain.ValidateTerm(term) != nil {
		return text("❌ %s", fieldHints["term"])
	}

	sections, err := h.search.Search(ctx, subject, num, term)
	if err != nil {
		h.lg.Warn().Err(err).Str("subject", subject).Str("term", term).Msg("class search failed")
		return text("❌ Class search failed. Please try again later.")
	}

	if num != "" {
		return sectionsReply(subject, num, term, sections)
	}
	return coursesReply(subject, term, sections)
}

func sectionsReply(subject, num, term string, sections []fetcher.Section) Reply {
	if len(sections) == 0 {
		return text("📭 No sections found for **%s %s** in term %s", subject, num, term)
	}

	e := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("🔍 %s %s Sections (Term: %s)", subject, num, term),
		Description: fmt.Sprintf("Found %d section(s)", len(sections)),
		Color:       brandColor,
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Use /checkclass %s %s to track a section", num, subject)},
	}
	for i, s := range sections {
		if i == maxSearchSections {
			e.Footer.Text = fmt.Sprintf("Showing %d of %d sections | Use /checkclass to track", maxSearchSections, len(sections))
			break
		}
		status := fmt.Sprintf("❌ Full (%d/%d)", s.Enrolled, s.Capacity)
		if s.Open() > 0 {
			status = fmt.Sprintf("✅ %d seats (%d/%d)", s.Open(), s.Enrolled, s.Capacity)
		}
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:   "Class #" + s.ClassNumber,
			Value:  fmt.Sprintf("👨‍🏫 %s\n📍 %s | 🕐 %s %s\n%s", s.Instructor, s.Location, s.Days, s.Time, status),
			Inline: true,
		})
	}
	return embed(e)
}

type courseSummary struct {
	title     string
	sections  int
	total     int
	available int
}

func coursesReply(subject, term string, sections []fetcher.Section) Reply {
	if len(sections) == 0 {
		return text("📭 No classes found for **%s** in term %s", subject, term)
	}

	courses := map[string]*courseSummary{}
	for _, s := range sections {
		cs, ok := courses[s.CatalogNumber]
		if !ok {
			cs = &courseSummary{title: s.Title}
			courses[s.CatalogNumber] = cs
		}
		cs.sections++
		cs.total += s.Capacity
		if s.Open() > 0 {
			cs.available += s.Open()
		}
	}
	nums := make([]string, 0, len(courses))
	for n := range courses {
		nums = append(nums, n)
	}
	sort.Strings(nums)

	e := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("🔍 %s Courses (Term: %s)", subject, term),
		Description: fmt.Sprintf("Found %d unique course(s)\nUse `/searchclass %s <number>` to see sections", len(courses), subject),
		Color:       brandColor,
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Use /searchclass %s <number> to see sections", subject)},
	}
	for i, n := range nums {
		if i == maxSearchCourses {
			e.Footer.Text = fmt.Sprintf("Showing %d of %d courses", maxSearchCourses, len(courses))
			break
		}
		cs := courses[n]
		status := "❌ Full"
		if cs.available > 0 {
			status = fmt.Sprintf("✅ %d/%d seats", cs.available, cs.total)
		}
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:   subject + " " + n,
			Value:  fmt.Sprintf("%s\n%d section(s) | %s", truncate(cs.title, 40), cs.sections, status),
			Inline: true,
		})
	}
	return embed(e)
}
