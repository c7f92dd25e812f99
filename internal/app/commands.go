package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/prepadmin/pkg/adminapi"
	"github.com/aussiebroadwan/prepadmin/pkg/apiclient"
)

// ErrUsage marks command-line mistakes; main exits with status 2 on it.
var ErrUsage = errors.New("usage error")

const usage = `usage: prepadmin <command> [flags] [args]

commands:
  login [-email addr] [-password pw]   sign in (password read from stdin when omitted)
  logout                               sign out and forget the stored session
  whoami                               show the signed-in staff member
  list <resource> [flags]              list a collection
  get <resource> <id>                  show one item
  create <resource> [body flags]       create an item
  update <resource> <id> [body flags]  replace an item (-patch for a partial update)
  delete <resource> <id>               delete an item
  content get <page>                   show a content page
  content set <page> [-f file]         replace a content page (HTML read from file or stdin)
  dashboard                            item counts for every collection
  version                              print the version

resources: subjects, chapters, questions, tests, users, admins, blogs
pages:     terms, privacy, refund, service, about-app
`

type command func(ctx context.Context, args []string) error

func (app *Application) commands() map[string]command {
	return map[string]command{
		"login":     app.cmdLogin,
		"logout":    app.cmdLogout,
		"whoami":    app.cmdWhoAmI,
		"list":      app.cmdList,
		"get":       app.cmdGet,
		"create":    app.cmdCreate,
		"update":    app.cmdUpdate,
		"delete":    app.cmdDelete,
		"content":   app.cmdContent,
		"dashboard": app.cmdDashboard,
		"version":   app.cmdVersion,
	}
}

func (app *Application) dispatch(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprint(app.Stdout, usage)
		if len(args) == 0 {
			return ErrUsage
		}
		return nil
	}

	cmd, ok := app.commands()[args[0]]
	if !ok {
		fmt.Fprint(app.Stderr, usage)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}
	return cmd(ctx, args[1:])
}

func (app *Application) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("prepadmin "+name, flag.ContinueOnError)
	fs.SetOutput(app.Stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string, nargs int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() != nargs {
		return nil, fmt.Errorf("%w: %s expects %d argument(s), got %d", ErrUsage, fs.Name(), nargs, fs.NArg())
	}
	return fs.Args(), nil
}

func (app *Application) print(v any) error {
	enc := json.NewEncoder(app.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ============================================================================
// Session commands
// ============================================================================

func (app *Application) cmdLogin(ctx context.Context, args []string) error {
	fs := app.flagSet("login")
	email := fs.String("email", os.Getenv("PREPADMIN_EMAIL"), "account email")
	password := fs.String("password", "", "account password (read from stdin when empty)")
	if _, err := parseFlags(fs, args, 0); err != nil {
		return err
	}

	if *email == "" {
		return fmt.Errorf("%w: -email is required", ErrUsage)
	}

	if *password == "" {
		line, err := bufio.NewReader(app.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read password: %w", err)
		}
		*password = strings.TrimRight(line, "\r\n")
	}

	sess, err := app.api.Auth.Login(ctx, *email, *password)
	if err != nil {
		return err
	}

	name := *email
	if sess.User != nil && sess.User.Name != "" {
		name = sess.User.Name
	}
	fmt.Fprintf(app.Stderr, "logged in as %s\n", name)
	return nil
}

func (app *Application) cmdLogout(ctx context.Context, args []string) error {
	if _, err := parseFlags(app.flagSet("logout"), args, 0); err != nil {
		return err
	}
	return app.api.Auth.Logout(ctx)
}

func (app *Application) cmdWhoAmI(ctx context.Context, args []string) error {
	if _, err := parseFlags(app.flagSet("whoami"), args, 0); err != nil {
		return err
	}

	id, err := app.api.Auth.Me(ctx)
	if err != nil {
		return err
	}

	out := struct {
		apiclient.Profile
		ExpiresAt string `json:"expiresAt,omitempty"`
		Expired   bool   `json:"expired"`
	}{Profile: id.Profile, Expired: id.Expired}
	if !id.ExpiresAt.IsZero() {
		out.ExpiresAt = id.ExpiresAt.Format(time.RFC3339)
	}
	return app.print(out)
}

func (app *Application) cmdVersion(_ context.Context, _ []string) error {
	fmt.Fprintln(app.Stdout, BuildVersion)
	return nil
}

// ============================================================================
// Resource commands
// ============================================================================

func (app *Application) resource(name string) (*adminapi.Resource[adminapi.Record], error) {
	res, err := app.api.Records(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return res, nil
}

// kvFlag collects repeated key=value flags.
type kvFlag map[string]string

func (f kvFlag) String() string {
	keys := slices.Sorted(maps.Keys(f))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+f[k])
	}
	return strings.Join(parts, ",")
}

func (f kvFlag) Set(v string) error {
	key, value, ok := strings.Cut(v, "=")
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", v)
	}
	f[key] = value
	return nil
}

func (app *Application) cmdList(ctx context.Context, args []string) error {
	fs := app.flagSet("list")
	var params adminapi.ListParams
	fs.IntVar(&params.Page, "page", 1, "page number")
	fs.IntVar(&params.Limit, "limit", 20, "items per page")
	fs.StringVar(&params.Search, "search", "", "search text")
	fs.StringVar(&params.SortBy, "sort", "", "sort field")
	fs.StringVar(&params.Order, "order", "", "sort order (asc, desc)")
	filters := kvFlag{}
	fs.Var(filters, "filter", "extra query filter key=value (repeatable)")

	rest, err := parseFlags(fs, args, 1)
	if err != nil {
		return err
	}
	params.Filters = filters

	res, err := app.resource(rest[0])
	if err != nil {
		return err
	}

	page, err := res.List(ctx, params)
	if err != nil {
		return err
	}

	return app.print(struct {
		Items      []adminapi.Record   `json:"items"`
		Pagination adminapi.Pagination `json:"pagination"`
	}{Items: page.Items, Pagination: page.Pagination})
}

func (app *Application) cmdGet(ctx context.Context, args []string) error {
	rest, err := parseFlags(app.flagSet("get"), args, 2)
	if err != nil {
		return err
	}

	res, err := app.resource(rest[0])
	if err != nil {
		return err
	}

	item, err := res.Get(ctx, rest[1])
	if err != nil {
		return err
	}
	return app.print(item)
}

func (app *Application) cmdDelete(ctx context.Context, args []string) error {
	rest, err := parseFlags(app.flagSet("delete"), args, 2)
	if err != nil {
		return err
	}

	res, err := app.resource(rest[0])
	if err != nil {
		return err
	}

	if err := res.Delete(ctx, rest[1]); err != nil {
		return err
	}
	fmt.Fprintf(app.Stderr, "deleted %s %s\n", rest[0], rest[1])
	return nil
}

// bodyFlags are shared by create and update.
type bodyFlags struct {
	data    *string
	file    *string
	uploads kvFlag
}

func addBodyFlags(fs *flag.FlagSet) *bodyFlags {
	b := &bodyFlags{
		data:    fs.String("data", "", "JSON body"),
		file:    fs.String("f", "-", "file holding the JSON body (- for stdin)"),
		uploads: kvFlag{},
	}
	fs.Var(b.uploads, "upload", "file field=path, sends multipart form data (repeatable)")
	return b
}

func (app *Application) readBody(b *bodyFlags) (json.RawMessage, error) {
	var raw []byte
	switch {
	case *b.data != "":
		raw = []byte(*b.data)
	case *b.file == "-":
		data, err := io.ReadAll(app.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read body from stdin: %w", err)
		}
		raw = data
	default:
		data, err := os.ReadFile(*b.file)
		if err != nil {
			return nil, fmt.Errorf("failed to read body: %w", err)
		}
		raw = data
	}

	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: body is not valid JSON", ErrUsage)
	}
	return json.RawMessage(raw), nil
}

// multipartFields flattens a JSON object into form fields. Non-string values
// are sent as their JSON text.
func multipartFields(body json.RawMessage) ([][2]string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("%w: multipart body must be a JSON object", ErrUsage)
	}

	fields := make([][2]string, 0, len(obj))
	for _, key := range slices.Sorted(maps.Keys(obj)) {
		var s string
		if err := json.Unmarshal(obj[key], &s); err == nil {
			fields = append(fields, [2]string{key, s})
			continue
		}
		fields = append(fields, [2]string{key, string(obj[key])})
	}
	return fields, nil
}

func openUploads(uploads kvFlag) ([]apiclient.File, func(), error) {
	var files []apiclient.File
	var opened []*os.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}

	for _, field := range slices.Sorted(maps.Keys(uploads)) {
		path := uploads[field]
		f, err := os.Open(path)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to open upload: %w", err)
		}
		opened = append(opened, f)
		files = append(files, apiclient.File{Field: field, Filename: filepath.Base(path), Content: f})
	}
	return files, closeAll, nil
}

func (app *Application) cmdCreate(ctx context.Context, args []string) error {
	fs := app.flagSet("create")
	b := addBodyFlags(fs)
	rest, err := parseFlags(fs, args, 1)
	if err != nil {
		return err
	}

	res, err := app.resource(rest[0])
	if err != nil {
		return err
	}

	body, err := app.readBody(b)
	if err != nil {
		return err
	}

	var item *adminapi.Record
	if len(b.uploads) > 0 {
		fields, err := multipartFields(body)
		if err != nil {
			return err
		}
		files, closeAll, err := openUploads(b.uploads)
		if err != nil {
			return err
		}
		defer closeAll()

		item, err = res.CreateMultipart(ctx, fields, files...)
		if err != nil {
			return err
		}
	} else {
		item, err = res.Create(ctx, body)
		if err != nil {
			return err
		}
	}

	return app.print(item)
}

func (app *Application) cmdUpdate(ctx context.Context, args []string) error {
	fs := app.flagSet("update")
	b := addBodyFlags(fs)
	patch := fs.Bool("patch", false, "send a partial update (PATCH) instead of PUT")
	rest, err := parseFlags(fs, args, 2)
	if err != nil {
		return err
	}

	res, err := app.resource(rest[0])
	if err != nil {
		return err
	}
	id := rest[1]

	body, err := app.readBody(b)
	if err != nil {
		return err
	}

	var item *adminapi.Record
	switch {
	case len(b.uploads) > 0:
		if *patch {
			return fmt.Errorf("%w: -patch cannot be combined with -upload", ErrUsage)
		}
		fields, err := multipartFields(body)
		if err != nil {
			return err
		}
		files, closeAll, err := openUploads(b.uploads)
		if err != nil {
			return err
		}
		defer closeAll()

		item, err = res.UpdateMultipart(ctx, id, fields, files...)
		if err != nil {
			return err
		}
	case *patch:
		item, err = res.Patch(ctx, id, body)
		if err != nil {
			return err
		}
	default:
		item, err = res.Update(ctx, id, body)
		if err != nil {
			return err
		}
	}

	return app.print(item)
}

// ============================================================================
// Content and dashboard
// ============================================================================

func (app *Application) cmdContent(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: content expects get or set", ErrUsage)
	}

	switch args[0] {
	case "get":
		rest, err := parseFlags(app.flagSet("content get"), args[1:], 1)
		if err != nil {
			return err
		}
		page, err := app.api.Content.Get(ctx, rest[0])
		if err != nil {
			return contentErr(err)
		}
		return app.print(page)

	case "set":
		fs := app.flagSet("content set")
		file := fs.String("f", "-", "file holding the page HTML (- for stdin)")
		rest, err := parseFlags(fs, args[1:], 1)
		if err != nil {
			return err
		}

		var html []byte
		if *file == "-" {
			html, err = io.ReadAll(app.Stdin)
		} else {
			html, err = os.ReadFile(*file)
		}
		if err != nil {
			return fmt.Errorf("failed to read page content: %w", err)
		}

		page, err := app.api.Content.Put(ctx, rest[0], string(html))
		if err != nil {
			return contentErr(err)
		}
		return app.print(page)

	default:
		return fmt.Errorf("%w: unknown content command %q", ErrUsage, args[0])
	}
}

func contentErr(err error) error {
	if errors.Is(err, adminapi.ErrUnknownPage) {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return err
}

func (app *Application) cmdDashboard(ctx context.Context, args []string) error {
	if _, err := parseFlags(app.flagSet("dashboard"), args, 0); err != nil {
		return err
	}

	counts, err := app.api.Overview(ctx)
	if err != nil {
		return err
	}
	return app.print(counts)
}
