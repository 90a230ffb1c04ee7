package commands

import (
	"encoding/json"
	"fmt"
	"mailru-backend/internal/mailru/objects"
	"mailru-backend/internal/mailru/session"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// parseParams turns key=value arguments into call parameters.
func parseParams(args []string) (session.Params, error) {
	params := session.Params{}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		params[key] = value
	}
	return params, nil
}

func printEvents(format string, events []objects.Event) error {
	if format != "table" {
		return printJSON(events)
	}

	t := newTable()
	t.AppendHeader(table.Row{"ID", "Time", "Type", "Subtype", "Author", "Likes", "Comments", "Text"})
	for _, e := range events {
		typeName := e.TypeName
		author := e.Author()
		if e.Subevent != nil {
			typeName = e.Subevent.TypeName
			author = e.Subevent.Author()
		}
		t.AppendRow(table.Row{
			e.ID,
			time.Unix(e.Time, 0).Format(time.DateTime),
			typeName,
			e.Subtype,
			author,
			e.LikesCount,
			e.CommentsCount,
			text.Trim(strings.ReplaceAll(e.UserText, "\n", " "), 48),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "Total", len(events)})
	t.Render()
	return nil
}

func printProfiles(format string, res any) error {
	list, ok := res.([]any)
	if format != "table" || !ok {
		return printJSON(res)
	}

	t := newTable()
	t.AppendHeader(table.Row{"UID", "Name", "Link"})
	for _, item := range list {
		profile, _ := item.(map[string]any)
		name, _ := profile["nick"].(string)
		if name == "" {
			name, _ = profile["name"].(string)
		}
		t.AppendRow(table.Row{profile["uid"], name, profile["link"]})
	}
	t.Render()
	return nil
}
