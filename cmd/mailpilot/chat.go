package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

const chatBanner = `mailpilot - your Gmail assistant
Ask me to find emails, draft replies, or send them.
Type "quit" to exit.
`

// turnRunner is the slice of the agent the chat loop needs.
type turnRunner interface {
	AddUserMessage(content string)
	RunTurn(ctx context.Context) (string, error)
}

// runChat drives the interactive session: read a line, run one agent
// turn, print the response. Completion failures are printed and the
// session continues; EOF, a quit command, or context cancellation end
// the loop. Input is read on its own goroutine so an interrupt ends
// the session even while blocked at the prompt; that goroutine may
// stay parked on stdin until process exit.
func runChat(ctx context.Context, stdin io.Reader, stdout io.Writer, a turnRunner) error {
	fmt.Fprint(stdout, chatBanner)

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
		close(lines)
	}()

	for {
		fmt.Fprint(stdout, "\n> ")

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(stdout, "\nGoodbye.")
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(stdout, "\nGoodbye.")
				return <-readErr
			}
			line = l
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch strings.ToLower(line) {
		case "quit", "exit", "q":
			fmt.Fprintln(stdout, "Goodbye.")
			return nil
		}

		a.AddUserMessage(line)
		response, err := a.RunTurn(ctx)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(stdout, "\nGoodbye.")
				return nil
			}
			fmt.Fprintf(stdout, "Error: %v\n", err)
			continue
		}

		fmt.Fprintln(stdout, response)
	}
}
