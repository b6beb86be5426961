package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Command string

const (
	CommandSign    Command = "sign"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandSign:    {},
	CommandDoctor:  {},
	CommandVersion: {},
	CommandHelp:    {},
}

// SignOptions collects every submission parameter given on the command line.
// Unset fields fall back to environment settings in the app layer.
type SignOptions struct {
	APIKey       string
	APISecret    string
	ID           string
	Version      string
	XPIPath      string
	Channel      string
	APIProxy     string
	DownloadDir  string
	JWTExpiresIn time.Duration
	Verbose      bool
}

type Parsed struct {
	Command  Command
	ShowHelp bool
	Sign     SignOptions
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}
	commandSet := false

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--verbose":
			parsed.Sign.Verbose = true
		case "--api-key":
			value, err := flagValue(args, &i, arg)
			if err != nil {
				return Parsed{}, err
			}
			parsed.Sign.APIKey = value
		case "--api-secret":
			value, err := flagValue(args, &i, arg)
			if err != nil {
				return Parsed{}, err
			}
			parsed.Sign.APISecret = value
		case "--id":
			value, err := flagValue(args, &i, arg)
			if err != nil {
				return Parsed{}, err
			}
			parsed.Sign.ID = value
		case "--xpi":
			value, err := flagValue(args, &i, arg)
			if err != nil {
				return Parsed{}, err
			}
			parsed.Sign.XPIPath = value
		case "--xpi-version":
			value, err := flagValue(args, &i, arg)
			if err != nil {
				return Parsed{}, err
			}
			parsed.Sign.Version = value
		case "--channel":
			value, err := flagValue(args, &i, arg)
			if err != nil {
				return Parsed{}, err
			}
			parsed.Sign.Channel = value
		case "--api-proxy":
			value, err := flagValue(args, &i, arg)
			if err != nil {
				return Parsed{}, err
			}
			parsed.Sign.APIProxy = value
		case "--download-dir":
			value, err := flagValue(args, &i, arg)
			if err != nil {
				return Parsed{}, err
			}
			parsed.Sign.DownloadDir = value
		case "--jwt-expires-in":
			value, err := flagValue(args, &i, arg)
			if err != nil {
				return Parsed{}, err
			}
			lifetime, err := time.ParseDuration(value)
			if err != nil {
				return Parsed{}, fmt.Errorf("--jwt-expires-in: invalid duration %q", value)
			}
			parsed.Sign.JWTExpiresIn = lifetime
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}
			if commandSet {
				return Parsed{}, fmt.Errorf("unexpected argument %q after command", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			commandSet = true
		}
	}

	return parsed, nil
}

func flagValue(args []string, i *int, name string) (string, error) {
	*i++
	if *i >= len(args) {
		return "", errors.New(name + " requires a value")
	}
	return args[*i], nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s <command> [flags]

Commands:
  sign      Upload an extension package for validation and signing
  doctor    Run credential, package, and endpoint checks
  version   Print version information
  help      Show this help

Flags:
  --api-key KEY          Signing API key (or env XPISIGN_API_KEY)
  --api-secret SECRET    Signing API secret (or env XPISIGN_API_SECRET)
  --xpi PATH             Path to the package to upload
  --xpi-version VERSION  Version of the package being uploaded
  --id GUID              Add-on identifier; omit to let the service assign one
  --channel CHANNEL      Release channel, e.g. listed or unlisted
  --api-proxy URL        Proxy server for API traffic (or env XPISIGN_PROXY)
  --jwt-expires-in DUR   Auth token lifetime, e.g. 90s
  --download-dir PATH    Directory for signed files (default: working dir)
  --verbose              Enable debug logging
  -h, --help             Show help
  --version              Show version
`, binaryName)
}
