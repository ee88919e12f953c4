package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/birbparty/flox-go/internal/export"
	"github.com/birbparty/flox-go/internal/wire"
	"github.com/birbparty/flox-go/sdk"
)

// command runs one floxctl command with the arguments following its name
type command func(ctx context.Context, app *cli, args []string) error

var commands map[string]command

func init() {
	commands = map[string]command{
		"status":     statusCommand,
		"entity":     entityCommand,
		"query":      queryCommand,
		"scores":     scoresCommand,
		"post-score": postScoreCommand,
		"logs":       logsCommand,
	}
}

// newFlagSet creates the flag set of a command. Parse errors are returned,
// not printed twice.
func (app *cli) newFlagSet(name string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.SetOutput(app.stderr)
	return flagSet
}

func parseFlags(flagSet *pflag.FlagSet, args []string) error {
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return err
		}
		return &usageError{msg: err.Error()}
	}
	return nil
}

func statusCommand(ctx context.Context, app *cli, args []string) error {
	if len(args) != 0 {
		return usagef("status takes no arguments")
	}

	status, err := app.client.Status(ctx)
	if err != nil {
		return err
	}

	okColor.Fprintf(app.stdout, "%s (game %s)\n", app.client.BaseURL(), app.client.GameID())
	for _, key := range sortedKeys(status) {
		keyColor.Fprintf(app.stdout, "%s: ", key)
		fmt.Fprintln(app.stdout, status[key])
	}
	return nil
}

func entityCommand(ctx context.Context, app *cli, args []string) error {
	if len(args) == 0 {
		return usagef("entity needs a subcommand: get, put or delete")
	}

	switch sub, rest := args[0], args[1:]; sub {
	case "get":
		if len(rest) != 2 {
			return usagef("usage: entity get <type> <id>")
		}
		record, err := app.client.LoadEntity(ctx, rest[0], rest[1])
		if err != nil {
			if sdk.IsNotFound(err) {
				return fmt.Errorf("%s %s does not exist", rest[0], rest[1])
			}
			return err
		}
		return printJSON(app.stdout, record.Data())

	case "put":
		if len(rest) != 3 {
			return usagef("usage: entity put <type> <id> <json>")
		}
		var data map[string]interface{}
		if err := wire.Unmarshal([]byte(rest[2]), &data); err != nil {
			return fmt.Errorf("entity data must be a JSON object: %w", err)
		}
		record := sdk.NewRecord(entityType(rest[0]), rest[1], data)
		if err := app.client.SaveEntity(ctx, record); err != nil {
			return err
		}
		okColor.Fprintf(app.stdout, "saved %s\n", record.Path())
		fmt.Fprintf(app.stdout, "updatedAt: %s\n", record.UpdatedAt().Format(time.RFC3339))
		return nil

	case "delete":
		if len(rest) != 2 {
			return usagef("usage: entity delete <type> <id>")
		}
		if err := app.client.DeleteEntityByID(ctx, entityType(rest[0]), rest[1]); err != nil {
			return err
		}
		okColor.Fprintf(app.stdout, "deleted %s %s\n", rest[0], rest[1])
		return nil
	}
	return usagef("unknown entity subcommand %q", args[0])
}

func queryCommand(ctx context.Context, app *cli, args []string) error {
	flagSet := app.newFlagSet("query")
	offset := flagSet.Int("offset", 0, "index of the first result")
	limit := flagSet.Int("limit", sdk.DefaultQueryLimit, "maximum number of results")
	orderBy := flagSet.String("order-by", "", `sort order, e.g. "score DESC"`)
	idsOnly := flagSet.Bool("ids", false, "print only the ids")
	if err := parseFlags(flagSet, args); err != nil {
		return err
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		return usagef("usage: query <type> [where] [args...]")
	}

	var where string
	if len(rest) > 1 {
		where = rest[1]
	}
	var queryArgs []interface{}
	if len(rest) > 2 {
		queryArgs = parseArgs(rest[2:])
	}

	query, err := sdk.NewQuery(rest[0], where, queryArgs...)
	if err != nil {
		return err
	}
	query.Offset = *offset
	query.Limit = *limit
	query.OrderBy = *orderBy

	if *idsOnly {
		ids, err := app.client.FindEntityIDs(ctx, query)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(app.stdout, id)
		}
		return nil
	}

	results, err := app.client.FindEntities(ctx, query)
	if err != nil {
		return err
	}
	app.logger.WithField("count", results.Len()).Debug("Query matched")

	return results.EachWithID(ctx, func(id string, record sdk.Record) error {
		keyColor.Fprintf(app.stdout, "%s ", id)
		return printCompactJSON(app.stdout, record.Data())
	})
}

func scoresCommand(ctx context.Context, app *cli, args []string) error {
	flagSet := app.newFlagSet("scores")
	scopeName := flagSet.String("scope", "all_time", "time window: today, this_week or all_time")
	players := flagSet.StringSlice("players", nil, "only show the scores of these player ids")
	if err := parseFlags(flagSet, args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return usagef("usage: scores <board> [--scope today|this_week|all_time | --players a,b]")
	}

	var scope sdk.Scope
	if len(*players) > 0 {
		if flagSet.Changed("scope") {
			return usagef("--scope and --players cannot be combined")
		}
		scope = sdk.PlayerScope(*players)
	} else {
		timeScope, err := sdk.ParseTimeScope(*scopeName)
		if err != nil {
			return &usageError{msg: err.Error()}
		}
		scope = timeScope
	}

	scores, err := app.client.LoadScores(ctx, flagSet.Arg(0), scope)
	if err != nil {
		return err
	}
	if len(scores) == 0 {
		subtleColor.Fprintln(app.stdout, "no scores")
		return nil
	}

	w := tabwriter.NewWriter(app.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tPLAYER\tSCORE\tCOUNTRY\tPOSTED")
	for i, score := range scores {
		posted := ""
		if !score.CreatedAt.IsZero() {
			posted = score.CreatedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", i+1, score.PlayerName, score.Value, score.Country, posted)
	}
	return w.Flush()
}

func postScoreCommand(ctx context.Context, app *cli, args []string) error {
	if len(args) != 3 {
		return usagef("usage: post-score <board> <value> <name>")
	}
	value, err := strconv.Atoi(args[1])
	if err != nil {
		return usagef("score value must be an integer, got %q", args[1])
	}
	if err := app.client.PostScore(ctx, args[0], value, args[2]); err != nil {
		return err
	}
	okColor.Fprintf(app.stdout, "posted %d for %s to %s\n", value, args[2], args[0])
	return nil
}

func logsCommand(ctx context.Context, app *cli, args []string) error {
	flagSet := app.newFlagSet("logs")
	query := flagSet.StringP("query", "q", "", `log query, e.g. "day:2014-02-20 severity:error"`)
	limit := flagSet.IntP("limit", "l", 100, "maximum number of logs (0 for all)")
	exportTo := flagSet.String("export", "", "export the logs instead of printing them: file or s3")
	dest := flagSet.String("dest", "", "export name (default logs-<timestamp>)")
	if err := parseFlags(flagSet, args); err != nil {
		return err
	}
	if flagSet.NArg() != 0 {
		return usagef("logs takes no arguments; use --query")
	}

	var sink export.Sink
	if *exportTo != "" {
		var err error
		if sink, err = app.sink(*exportTo); err != nil {
			return err
		}
	}

	results, err := app.client.FindLogs(ctx, *query, *limit)
	if err != nil {
		return err
	}

	if sink == nil {
		return results.Each(ctx, func(log map[string]interface{}) error {
			return printCompactJSON(app.stdout, log)
		})
	}

	logs, err := results.Collect(ctx)
	if err != nil {
		return err
	}
	name := *dest
	if name == "" {
		name = "logs-" + time.Now().UTC().Format("20060102-150405")
	}
	location, err := sink.Write(ctx, name, logs)
	if err != nil {
		return err
	}
	okColor.Fprintf(app.stdout, "exported %d logs to %s\n", len(logs), location)
	return nil
}

// sink builds the export sink selected by kind
func (app *cli) sink(kind string) (export.Sink, error) {
	switch kind {
	case "file":
		return export.NewFileSink(app.config.Export.Dir), nil
	case "s3":
		s3 := app.config.Export.S3
		if s3.Bucket == "" {
			return nil, fmt.Errorf("s3 export needs a bucket (export.s3.bucket or FLOX_S3_BUCKET)")
		}
		return export.NewS3Sink(export.S3Config{
			Endpoint:       s3.Endpoint,
			Region:         s3.Region,
			Bucket:         s3.Bucket,
			Prefix:         s3.Prefix,
			ForcePathStyle: s3.Endpoint != "",
		})
	}
	return nil, usagef("unknown export target %q (use file or s3)", kind)
}

// entityType accepts "Player" for the player type, as queries do.
func entityType(name string) string {
	if name == "Player" {
		return sdk.PlayerType
	}
	return name
}

// parseArgs reads query arguments as JSON values; anything that is not
// valid JSON is taken as a plain string.
func parseArgs(args []string) []interface{} {
	values := make([]interface{}, len(args))
	for i, arg := range args {
		var v interface{}
		if err := wire.Unmarshal([]byte(arg), &v); err != nil {
			v = arg
		}
		values[i] = v
	}
	return values
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printCompactJSON(w io.Writer, v interface{}) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
