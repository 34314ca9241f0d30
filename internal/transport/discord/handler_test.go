package discord

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/seatwatch/internal/application/tracking"
	"github.com/baechuer/seatwatch/internal/infrastructure/fetcher"
	"github.com/baechuer/seatwatch/internal/infrastructure/store"
)

type fakeSearcher struct {
	sections []fetcher.Section
	err      error
	calls    int
	lastNum  string
}

func (f *fakeSearcher) Search(ctx context.Context, subject, catalogNbr, term string) ([]fetcher.Section, error) {
	f.calls++
	f.lastNum = catalogNbr
	return f.sections, f.err
}

type fakeReporter struct{ rep tracking.SweepReport }

func (f fakeReporter) LastReport() tracking.SweepReport { return f.rep }

func newHandler(t *testing.T, search Searcher) (*Handler, *tracking.Registry) {
	t.Helper()
	fs := store.NewFileStore(filepath.Join(t.TempDir(), "class_requests.json"), zerolog.Nop())
	st, err := tracking.LoadState(fs)
	require.NoError(t, err)
	reg := tracking.NewRegistry(st, tracking.NewFetchers(), tracking.RegistryConfig{
		MaxRequestsPerUser: 2,
		DefaultTerm:        "2261",
	}, zerolog.Nop())

	h := NewHandler(reg, search, fakeReporter{}, HandlerConfig{
		CheckInterval: 5 * time.Minute,
		Guilds:        func() int { return 3 },
	}, zerolog.Nop())
	return h, reg
}

func checkclass(user, subject, num string) Command {
	return Command{
		Name:      cmdCheck,
		UserID:    user,
		Username:  "user" + user,
		ChannelID: "C1",
		Strings:   map[string]string{"class_subject": subject, "class_num": num},
	}
}

func TestHandle_CheckClass(t *testing.T) {
	h, reg := newHandler(t, nil)
	ctx := context.Background()

	reply := h.Handle(ctx, checkclass("U1", "cse", "205"))
	assert.Contains(t, reply.Content, "Now tracking **CSE 205** (Term: 2261)")
	assert.Contains(t, reply.Content, "every 5 minutes")

	mine := reg.List(ctx, "U1")
	require.Len(t, mine, 1)
	assert.Equal(t, "C1", mine[0].NotifyChannelID)
	assert.Equal(t, "userU1", mine[0].OwnerDisplayName)

	reply = h.Handle(ctx, checkclass("U1", "CSE", "205"))
	assert.Contains(t, reply.Content, "already tracking **CSE 205**")
	assert.Len(t, reg.List(ctx, "U1"), 1)
}

func TestHandle_CheckClassValidation(t *testing.T) {
	h, reg := newHandler(t, nil)

	reply := h.Handle(context.Background(), checkclass("U1", "CSE", "2x5"))
	assert.Contains(t, reply.Content, "Class number must be numeric")

	c := checkclass("U1", "CSE", "205")
	c.Strings["term"] = "2262"
	reply = h.Handle(context.Background(), c)
	assert.Contains(t, reply.Content, "Term must be 4 digits")

	assert.Empty(t, reg.ListAll(context.Background()))
}

func TestHandle_Limit(t *testing.T) {
	h, _ := newHandler(t, nil)
	ctx := context.Background()

	h.Handle(ctx, checkclass("U1", "CSE", "205"))
	h.Handle(ctx, Command{Name: cmdCourse, UserID: "U1", Strings: map[string]string{"course_id": "12345"}})
	reply := h.Handle(ctx, checkclass("U1", "MAT", "265"))

	assert.Contains(t, reply.Content, "limit of 2 tracking requests")
}

func TestHandle_MyRequestsAndRemove(t *testing.T) {
	h, reg := newHandler(t, nil)
	ctx := context.Background()

	reply := h.Handle(ctx, Command{Name: cmdMine, UserID: "U1"})
	assert.Contains(t, reply.Content, "no active tracking requests")

	h.Handle(ctx, checkclass("U1", "CSE", "205"))
	h.Handle(ctx, Command{Name: cmdCourse, UserID: "U1", Strings: map[string]string{"course_id": "12345"}})

	reply = h.Handle(ctx, Command{Name: cmdMine, UserID: "U1"})
	require.Len(t, reply.Embeds, 1)
	require.Len(t, reply.Embeds[0].Fields, 2)
	assert.Equal(t, "0. CSE 205", reply.Embeds[0].Fields[0].Name)
	assert.Equal(t, "1. Course ID: 12345", reply.Embeds[0].Fields[1].Name)

	reply = h.Handle(ctx, Command{Name: cmdRemove, UserID: "U1", Ints: map[string]int64{"index": 5}})
	assert.Contains(t, reply.Content, "valid indices (0-1)")

	reply = h.Handle(ctx, Command{Name: cmdRemove, UserID: "U1", Ints: map[string]int64{"index": 0}})
	assert.Contains(t, reply.Content, "Removed tracking request for **CSE 205**")

	left := reg.List(ctx, "U1")
	require.Len(t, left, 1)
	assert.Equal(t, "12345", left[0].CourseID)
}

func TestHandle_StopChecking(t *testing.T) {
	h, reg := newHandler(t, nil)
	ctx := context.Background()
	h.Handle(ctx, checkclass("U1", "CSE", "205"))
	h.Handle(ctx, checkclass("U2", "CSE", "205"))

	reply := h.Handle(ctx, Command{Name: cmdStop, UserID: "U1"})
	assert.Contains(t, reply.Content, "Removed all **1**")

	reply = h.Handle(ctx, Command{Name: cmdStop, UserID: "U1"})
	assert.Contains(t, reply.Content, "no active tracking requests")
	assert.Len(t, reg.ListAll(ctx), 1)
}

func TestHandle_ListAllGroupsByUser(t *testing.T) {
	h, _ := newHandler(t, nil)
	ctx := context.Background()

	assert.Contains(t, h.Handle(ctx, Command{Name: cmdListAll}).Content, "No active tracking requests")

	h.Handle(ctx, checkclass("U1", "CSE", "205"))
	h.Handle(ctx, checkclass("U2", "MAT", "265"))
	h.Handle(ctx, checkclass("U1", "CSE", "110"))

	reply := h.Handle(ctx, Command{Name: cmdListAll})
	require.Len(t, reply.Embeds, 1)
	e := reply.Embeds[0]
	assert.Contains(t, e.Title, "(3)")
	require.Len(t, e.Fields, 2)
	assert.Equal(t, "userU1 (2)", e.Fields[0].Name)
	assert.Contains(t, e.Fields[0].Value, "CSE 110")
}

func TestHandle_Status(t *testing.T) {
	h, _ := newHandler(t, nil)
	ctx := context.Background()
	h.Handle(ctx, checkclass("U1", "CSE", "205"))

	reply := h.Handle(ctx, Command{Name: cmdStatus})
	require.Len(t, reply.Embeds, 1)

	fields := map[string]string{}
	for _, f := range reply.Embeds[0].Fields {
		fields[f.Name] = f.Value
	}
	assert.Equal(t, "1", fields["Active Requests"])
	assert.Equal(t, "1", fields["Users Tracking"])
	assert.Equal(t, "3", fields["Servers"])
	assert.Equal(t, "5 min", fields["Check Interval"])
	assert.Contains(t, fields["Last Sweep"], "Waiting")
}

func TestHandle_SearchSections(t *testing.T) {
	s := &fakeSearcher{sections: []fetcher.Section{
		{ClassNumber: "12002", CatalogNumber: "205", Title: "OOP", Enrolled: 100, Capacity: 100},
		{ClassNumber: "12003", CatalogNumber: "205", Title: "OOP", Enrolled: 90, Capacity: 100},
	}}
	h, _ := newHandler(t, s)

	reply := h.Handle(context.Background(), Command{Name: cmdSearch, Strings: map[string]string{"subject": "cse", "course_num": "205"}})

	require.Len(t, reply.Embeds, 1)
	e := reply.Embeds[0]
	assert.Equal(t, "🔍 CSE 205 Sections (Term: 2261)", e.Title)
	require.Len(t, e.Fields, 2)
	assert.Contains(t, e.Fields[0].Value, "❌ Full (100/100)")
	assert.Contains(t, e.Fields[1].Value, "✅ 10 seats (90/100)")
	assert.Equal(t, "205", s.lastNum)
}

func TestHandle_SearchCourses(t *testing.T) {
	s := &fakeSearcher{sections: []fetcher.Section{
		{CatalogNumber: "310", Title: "Data Structures", Enrolled: 50, Capacity: 50},
		{CatalogNumber: "205", Title: "OOP", Enrolled: 95, Capacity: 100},
		{CatalogNumber: "205", Title: "OOP", Enrolled: 100, Capacity: 100},
	}}
	h, _ := newHandler(t, s)

	reply := h.Handle(context.Background(), Command{Name: cmdSearch, Strings: map[string]string{"subject": "CSE"}})

	require.Len(t, reply.Embeds, 1)
	e := reply.Embeds[0]
	require.Len(t, e.Fields, 2)
	assert.Equal(t, "CSE 205", e.Fields[0].Name)
	assert.Contains(t, e.Fields[0].Value, "2 section(s) | ✅ 5/200 seats")
	assert.Contains(t, e.Fields[1].Value, "❌ Full")
}

func TestHandle_SearchErrors(t *testing.T) {
	h, _ := newHandler(t, nil)
	assert.Contains(t, h.Handle(context.Background(), Command{Name: cmdSearch}).Content, "not available")

	s := &fakeSearcher{err: errors.New("HTTP 503")}
	h, _ = newHandler(t, s)
	assert.Contains(t, h.Handle(context.Background(), Command{Name: cmdSearch, Strings: map[string]string{"subject": "TOOLONGX"}}).Content, "Subject must be")
	assert.Equal(t, 0, s.calls)
	assert.Contains(t, h.Handle(context.Background(), Command{Name: cmdSearch, Strings: map[string]string{"subject": "CSE"}}).Content, "search failed")

	s.err = nil
	assert.Contains(t, h.Handle(context.Background(), Command{Name: cmdSearch, Strings: map[string]string{"subject": "CSE"}}).Content, "No classes found")
}

func TestHandle_HelpAndUnknown(t *testing.T) {
	h, _ := newHandler(t, nil)

	reply := h.Handle(context.Background(), Command{Name: cmdHelp})
	require.Len(t, reply.Embeds, 1)
	assert.Len(t, reply.Embeds[0].Fields, 8)

	assert.Contains(t, h.Handle(context.Background(), Command{Name: "nope"}).Content, "Unknown command")
}

func TestApplicationCommandsCoverHandler(t *testing.T) {
	h, _ := newHandler(t, nil)
	for _, c := range applicationCommands("2261") {
		reply := h.Handle(context.Background(), Command{Name: c.Name})
		assert.NotContains(t, reply.Content, "Unknown command", c.Name)
	}
}

func TestCommandFromInteraction(t *testing.T) {
	ic := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		ChannelID: "C9",
		Member:    &discordgo.Member{User: &discordgo.User{ID: "U7", Username: "ana", GlobalName: "Ana"}},
		Data: discordgo.ApplicationCommandInteractionData{
			Name: cmdRemove,
			Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{Name: "index", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(2)},
				{Name: "term", Type: discordgo.ApplicationCommandOptionString, Value: "2267"},
			},
		},
	}}

	cmd := commandFromInteraction(ic)

	assert.Equal(t, cmdRemove, cmd.Name)
	assert.Equal(t, "U7", cmd.UserID)
	assert.Equal(t, "Ana", cmd.Username)
	assert.Equal(t, "C9", cmd.ChannelID)
	assert.Equal(t, int64(2), cmd.Ints["index"])
	assert.Equal(t, "2267", cmd.Strings["term"])
}
