package cli

type Options struct {
	ConfigFile string            `short:"f" long:"file" description:"TOML config file, ~/.config/apiclient/config.toml when empty"`
	URL        string            `short:"u" long:"url" description:"API base URL, overrides the config file"`
	Method     string            `short:"X" long:"method" description:"HTTP method" default:"GET"`
	Path       string            `short:"p" long:"path" description:"request path, prefixed with the API prefix unless absolute"`
	Data       string            `short:"d" long:"data" description:"JSON request body"`
	Query      map[string]string `short:"q" long:"query" description:"query parameter, name:value"`
	Token      string            `short:"t" long:"token" description:"bearer token used instead of the stored credential"`
	NoCache    bool              `long:"no-cache" description:"bypass the response cache"`
	Logout     bool              `long:"logout" description:"clear the stored credential and session"`
	Verbose    bool              `short:"v" long:"verbose" description:"log requests to stderr"`
}
