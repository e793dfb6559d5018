package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/jessevdk/go-flags"
	"github.com/viant/apiclient"
	"github.com/viant/apiclient/client"
	"github.com/viant/apiclient/client/auth/transport"
	"github.com/viant/apiclient/internal/config"
	"github.com/viant/apiclient/schema"
)

func Run(args []string) error {
	return RunWithOutput(context.Background(), args, os.Stdout, os.Stderr)
}

// RunWithOutput issues one request described by args and writes the response data to stdout.
func RunWithOutput(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	options := &Options{}
	if _, err := flags.ParseArgs(options, args); err != nil {
		return err
	}
	cfg, err := config.Load(options.ConfigFile)
	if err != nil {
		return err
	}
	clientOptions := apiclient.FromConfig(cfg)
	if options.URL != "" {
		clientOptions.BaseURL = options.URL
	}
	clientOptions.Logger = newLogger(stderr, options.Verbose)
	api, err := apiclient.NewClient(ctx, clientOptions)
	if err != nil {
		return err
	}
	if options.Logout {
		return api.Logout(ctx)
	}
	if options.Path == "" {
		return fmt.Errorf("path is required")
	}

	if options.Token != "" {
		ctx = transport.WithAuthToken(ctx, options.Token)
	}
	var requestOptions []client.RequestOption
	if options.NoCache {
		requestOptions = append(requestOptions, client.WithForceRefreshCache())
	}
	names := make([]string, 0, len(options.Query))
	for name := range options.Query {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		requestOptions = append(requestOptions, client.WithParam(name, options.Query[name]))
	}
	var body any
	if options.Data != "" {
		if !json.Valid([]byte(options.Data)) {
			return fmt.Errorf("data is not valid JSON")
		}
		body = json.RawMessage(options.Data)
	}

	response, err := api.Request(ctx, options.Method, options.Path, body, requestOptions...)
	if err != nil {
		if redirect, ok := schema.RedirectTarget(err); ok {
			return fmt.Errorf("%w: sign in at %v", err, redirect)
		}
		return err
	}
	return write(stdout, response)
}

func write(w io.Writer, response *schema.Response) error {
	switch response.Kind {
	case schema.KindEmpty:
		return nil
	case schema.KindBinary:
		_, err := w.Write(response.Body)
		return err
	}
	out := bytes.Buffer{}
	if err := json.Indent(&out, response.Data, "", "  "); err != nil {
		return err
	}
	out.WriteByte('\n')
	_, err := w.Write(out.Bytes())
	return err
}
