package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"deskmate/internal/types"
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Chat with the companion",
	Long: `Starts a terminal chat session, or with a message argument sends it
once and prints the reply. Directives embedded in replies are applied
to the in-memory animation backend and summarized after each reply.

Commands inside the session:
  /reset        clear the conversation history
  /motions      list loaded motion groups
  /expressions  list expression presets
  /quit         leave the session`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	app, err := buildApp(logger)
	if err != nil {
		return err
	}
	defer app.close()

	if len(args) > 0 {
		printReply(app.manager.SendMessage(cmd.Context(), strings.Join(args, " ")))
		return nil
	}

	if greeting := app.manager.Greeting(); greeting != "" {
		fmt.Println(greeting)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/quit", "/exit":
			return nil
		case "/reset":
			app.manager.ResetHistory()
			fmt.Println("history cleared")
			continue
		case "/motions":
			printMotions(app)
			continue
		case "/expressions":
			for _, name := range app.exprs.Names() {
				fmt.Println(name)
			}
			continue
		}

		printReply(app.manager.SendMessage(context.Background(), line))
	}
	return scanner.Err()
}

func printReply(resp types.StructuredResponse) {
	fmt.Println(resp.Text)
	if len(resp.Directives) > 0 {
		kinds := make([]string, len(resp.Directives))
		for i, d := range resp.Directives {
			kinds[i] = d.Kind
		}
		fmt.Printf("[applied: %s]\n", strings.Join(kinds, ", "))
	}
}

func printMotions(app *app) {
	motions := app.controller.ListMotions()
	if len(motions) == 0 {
		fmt.Println("no motions loaded (pass --model)")
		return
	}
	groups := make([]string, 0, len(motions))
	for group := range motions {
		groups = append(groups, group)
	}
	sort.Strings(groups)
	for _, group := range groups {
		fmt.Printf("%s (%d)\n", group, len(motions[group]))
		for _, file := range motions[group] {
			fmt.Printf("  %s\n", file)
		}
	}
}
