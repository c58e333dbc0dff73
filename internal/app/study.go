package app

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"google.golang.org/genai"

	"github.com/rbright/studymate/internal/gemini"
	"github.com/rbright/studymate/internal/store"
)

func (r Runner) commandChat(ctx context.Context, e env) int {
	name := e.parsed.Persona
	if name == "" {
		name = e.loaded.Config.Chat.Persona
	}
	persona, err := gemini.LookupPersona(name)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 2
	}

	apiKey, ok := r.apiKey(e)
	if !ok {
		return 1
	}
	client, ok := r.geminiClient(ctx, e, apiKey)
	if !ok {
		return 1
	}

	if len(e.parsed.Args) > 0 {
		reply, _, err := client.Chat(ctx, nil, "", persona.SystemInstruction, strings.Join(e.parsed.Args, " "))
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		fmt.Fprintln(r.Stdout, strings.TrimSpace(reply))
		return 0
	}

	greeting := persona.Title
	if user := e.store.UserName(); user != "" {
		greeting = fmt.Sprintf("%s (hi, %s!)", persona.Title, user)
	}
	fmt.Fprintln(r.Stdout, greeting)
	fmt.Fprintln(r.Stdout, "Try one of:")
	for _, s := range persona.Suggestions {
		fmt.Fprintf(r.Stdout, "  - %s\n", s)
	}
	fmt.Fprintln(r.Stdout, "Type /quit to leave.")

	return r.chatLoop(ctx, e, client, persona)
}

func (r Runner) chatLoop(ctx context.Context, e env, client *gemini.Client, persona gemini.Persona) int {
	stdin := r.Stdin
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	scanner := bufio.NewScanner(stdin)
	var conv *genai.Chat

	for {
		fmt.Fprint(r.Stdout, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.Stdout)
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return 0
		}

		reply, next, err := client.Chat(ctx, conv, "", persona.SystemInstruction, line)
		if err != nil {
			e.logger.Warn("chat message failed", "persona", persona.Name, "error", err.Error())
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			if ctx.Err() != nil {
				return 1
			}
			continue
		}
		conv = next
		fmt.Fprintln(r.Stdout, strings.TrimSpace(reply))
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(r.Stderr, "error: read input: %v\n", err)
		return 1
	}
	return 0
}

func (r Runner) commandTimetable(ctx context.Context, e env) int {
	apiKey, ok := r.apiKey(e)
	if !ok {
		return 1
	}
	client, ok := r.geminiClient(ctx, e, apiKey)
	if !ok {
		return 1
	}

	entries, err := client.Timetable(ctx, e.parsed.Subjects, e.parsed.Hours, e.parsed.Focus)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	if e.parsed.JSON {
		enc := json.NewEncoder(r.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		return 0
	}

	tw := tabwriter.NewWriter(r.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tTIME\tSUBJECT\tTOPIC")
	for _, entry := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", entry.Day, entry.Time, entry.Subject, entry.Topic)
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func (r Runner) commandProfile(ctx context.Context, e env) int {
	args := e.parsed.Args
	if len(args) == 0 {
		r.printProfile(e.store)
		return 0
	}

	var err error
	switch args[0] {
	case "name":
		name := ""
		if len(args) == 2 {
			name = args[1]
		}
		err = e.store.SetUserName(name)
	case "theme":
		err = e.store.SetTheme(args[1])
	case "watch":
		return r.watchProfile(ctx, e)
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	r.printProfile(e.store)
	return 0
}

func (r Runner) printProfile(st *store.Store) {
	name := st.UserName()
	if name == "" {
		name = "(not set)"
	}
	fmt.Fprintf(r.Stdout, "name: %s\ntheme: %s\n", name, st.Theme())
}

// watchProfile prints profile changes made by other studymate processes
// until ctx is cancelled.
func (r Runner) watchProfile(ctx context.Context, e env) int {
	changes := make(chan string, 8)
	push := func(label string) func(string) {
		return func(value string) {
			if value == "" {
				value = "(cleared)"
			}
			select {
			case changes <- label + ": " + value:
			default:
			}
		}
	}
	defer e.store.Subscribe(store.KeyUserName, push("name"))()
	defer e.store.Subscribe(store.KeyTheme, push("theme"))()

	watchErr := make(chan error, 1)
	go func() { watchErr <- e.store.Watch(ctx) }()

	r.printProfile(e.store)
	for {
		select {
		case line := <-changes:
			fmt.Fprintln(r.Stdout, line)
		case err := <-watchErr:
			if err != nil && ctx.Err() == nil {
				fmt.Fprintf(r.Stderr, "error: %v\n", err)
				return 1
			}
			return 0
		}
	}
}
