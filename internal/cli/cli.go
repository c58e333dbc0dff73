// Package cli parses the studymate command line.
package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Command string

const (
	CommandInterview Command = "interview"
	CommandStop      Command = "stop"
	CommandStatus    Command = "status"
	CommandHistory   Command = "history"
	CommandFeedback  Command = "feedback"
	CommandChat      Command = "chat"
	CommandTimetable Command = "timetable"
	CommandProfile   Command = "profile"
	CommandDevices   Command = "devices"
	CommandDoctor    Command = "doctor"
	CommandVersion   Command = "version"
	CommandHelp      Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandInterview: {},
	CommandStop:      {},
	CommandStatus:    {},
	CommandHistory:   {},
	CommandFeedback:  {},
	CommandChat:      {},
	CommandTimetable: {},
	CommandProfile:   {},
	CommandDevices:   {},
	CommandDoctor:    {},
	CommandVersion:   {},
	CommandHelp:      {},
}

// Parsed is the normalized command line.
type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool

	// Args are positional arguments after the command.
	Args []string

	// interview
	Feedback   bool
	NoGreeting bool

	// chat
	Persona string

	// timetable
	Subjects string
	Hours    int
	Focus    string
	JSON     bool
}

// Parse reads global flags, a command, then that command's flags and args.
func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	i := 0
	for ; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
			continue
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
			continue
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
			continue
		}
		if strings.HasPrefix(arg, "-") {
			return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
		}

		cmd := Command(arg)
		if _, ok := validCommands[cmd]; !ok {
			return Parsed{}, fmt.Errorf("unknown command: %s", arg)
		}
		parsed.Command = cmd
		parsed.ShowHelp = cmd == CommandHelp
		i++
		break
	}

	if err := parseCommandArgs(&parsed, args[i:]); err != nil {
		return Parsed{}, err
	}
	return parsed, nil
}

func parseCommandArgs(parsed *Parsed, rest []string) error {
	flagValue := func(i *int, name string) (string, error) {
		*i++
		if *i >= len(rest) {
			return "", fmt.Errorf("%s requires a value", name)
		}
		return rest[*i], nil
	}

	for i := 0; i < len(rest); i++ {
		arg := rest[i]
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			parsed.Args = append(parsed.Args, arg)
			continue
		}

		switch {
		case parsed.Command == CommandInterview && arg == "--feedback":
			parsed.Feedback = true
		case parsed.Command == CommandInterview && arg == "--no-greeting":
			parsed.NoGreeting = true
		case parsed.Command == CommandChat && arg == "--persona":
			v, err := flagValue(&i, arg)
			if err != nil {
				return err
			}
			parsed.Persona = v
		case parsed.Command == CommandTimetable && arg == "--subjects":
			v, err := flagValue(&i, arg)
			if err != nil {
				return err
			}
			parsed.Subjects = v
		case parsed.Command == CommandTimetable && arg == "--hours":
			v, err := flagValue(&i, arg)
			if err != nil {
				return err
			}
			hours, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("--hours must be a number: %q", v)
			}
			parsed.Hours = hours
		case parsed.Command == CommandTimetable && arg == "--focus":
			v, err := flagValue(&i, arg)
			if err != nil {
				return err
			}
			parsed.Focus = v
		case parsed.Command == CommandTimetable && arg == "--json":
			parsed.JSON = true
		default:
			return fmt.Errorf("unknown flag for %s: %s", parsed.Command, arg)
		}
	}

	return validateArgs(*parsed)
}

func validateArgs(parsed Parsed) error {
	n := len(parsed.Args)
	switch parsed.Command {
	case CommandChat:
		return nil
	case CommandHistory:
		if n > 1 || (n == 1 && parsed.Args[0] != "clear") {
			return errors.New(`history accepts only "clear"`)
		}
	case CommandProfile:
		if n == 0 {
			return nil
		}
		switch parsed.Args[0] {
		case "name":
			if n > 2 {
				return errors.New("profile name takes at most one value (quote names with spaces)")
			}
		case "theme":
			if n != 2 {
				return errors.New("profile theme requires light or dark")
			}
		case "watch":
			if n != 1 {
				return errors.New("profile watch takes no arguments")
			}
		default:
			return fmt.Errorf("unknown profile action: %s", parsed.Args[0])
		}
	case CommandTimetable:
		if n > 0 {
			return fmt.Errorf("unexpected arguments after command %q", parsed.Command)
		}
		if strings.TrimSpace(parsed.Subjects) == "" {
			return errors.New("timetable requires --subjects")
		}
		if parsed.Hours < 1 || parsed.Hours > 24 {
			return errors.New("timetable requires --hours between 1 and 24")
		}
	default:
		if n > 0 {
			return fmt.Errorf("unexpected arguments after command %q", parsed.Command)
		}
	}
	return nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command> [flags]

Commands:
  interview [--feedback] [--no-greeting]
                Run a voice mock interview until stopped
  stop          Stop the running interview
  status        Print the running interview state
  history [clear]
                Print or clear the last interview transcript
  feedback      Generate coaching feedback for the last interview
  chat [--persona NAME] [MESSAGE...]
                Chat with a study assistant (interactive without MESSAGE)
  timetable --subjects LIST --hours N [--focus LIST] [--json]
                Generate a 7-day study timetable
  profile [name [NAME] | theme light|dark | watch]
                Show or update the local profile
  devices       List available input devices
  doctor        Run configuration and environment checks
  version       Print version information
  help          Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/studymate/config.jsonc)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
