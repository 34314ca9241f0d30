package discord

import "github.com/bwmarrin/discordgo"

const (
	cmdHelp     = "helpbot"
	cmdCheck    = "checkclass"
	cmdCourse   = "checkcourse"
	cmdSearch   = "searchclass"
	cmdMine     = "myrequests"
	cmdRemove   = "removerequest"
	cmdStop     = "stopchecking"
	cmdListAll  = "listall"
	cmdStatus   = "status"
	brandColor  = 0x8C1D40
	accentColor = 0xFFC627
)

// deferred commands call upstream and may exceed the 3s interaction deadline.
var deferred = map[string]bool{
	cmdCheck:  true,
	cmdCourse: true,
	cmdSearch: true,
}

func strOpt(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        name,
		Description: desc,
		Required:    required,
	}
}

// applicationCommands is the slash-command set registered at startup.
func applicationCommands(defaultTerm string) []*discordgo.ApplicationCommand {
	zero := 0.0
	termDesc := "Academic term (default: " + defaultTerm + ")"
	return []*discordgo.ApplicationCommand{
		{Name: cmdHelp, Description: "Display help information about bot commands"},
		{
			Name:        cmdCheck,
			Description: "Track a class by number and subject",
			Options: []*discordgo.ApplicationCommandOption{
				strOpt("class_num", "Class catalog number (e.g., 205)", true),
				strOpt("class_subject", "Class subject code (e.g., CSE, MAT, ENG)", true),
				strOpt("term", termDesc, false),
			},
		},
		{
			Name:        cmdCourse,
			Description: "Track a course by ID for availability",
			Options: []*discordgo.ApplicationCommandOption{
				strOpt("course_id", "Course ID number (e.g., 12345)", true),
				strOpt("term", termDesc, false),
			},
		},
		{
			Name:        cmdSearch,
			Description: "Search for classes by subject code and optionally course number",
			Options: []*discordgo.ApplicationCommandOption{
				strOpt("subject", "Subject code (e.g., CSE, MAT, ENG)", true),
				strOpt("course_num", "Course number (e.g., 205), empty lists all courses", false),
				strOpt("term", termDesc, false),
			},
		},
		{Name: cmdMine, Description: "Show all tracking requests for the current user"},
		{
			Name:        cmdRemove,
			Description: "Remove a specific tracking request by index",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "index",
					Description: "The index of the request (from /myrequests)",
					Required:    true,
					MinValue:    &zero,
				},
			},
		},
		{Name: cmdStop, Description: "Remove ALL tracking requests for the current user"},
		{Name: cmdListAll, Description: "Show all active tracking requests from all users"},
		{Name: cmdStatus, Description: "Show bot status and statistics"},
	}
}
