package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/menuchat/internal/chat"
	"github.com/xiaot623/gogo/menuchat/internal/connection"
	"github.com/xiaot623/gogo/menuchat/internal/conversation"
	"github.com/xiaot623/gogo/menuchat/internal/protocol"
	"github.com/xiaot623/gogo/menuchat/internal/surface"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the menu assistant from the terminal",
	Long: `Open a chat session and read questions from stdin.

Commands:
  /panel      toggle the embedded panel
  /float      toggle the floating widget
  /width N    set the panel width
  /status     show connection and layout state
  /quit       exit`,
	RunE: runChat,
}

var chatURL string

func init() {
	chatCmd.Flags().StringVar(&chatURL, "url", "", "Chat endpoint (overrides CHAT_URL)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if chatURL != "" {
		cfg.Client.ChatURL = chatURL
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, closeLog := newLogger(cfg)
	defer closeLog()

	out := cmd.OutOrStdout()
	var renderer *terminalRenderer
	session, err := chat.NewSession(cfg.Client, chat.Options{
		Renderer: surface.RendererFunc(func(kind surface.Kind, view conversation.Snapshot) {
			renderer.Render(kind, view)
		}),
		OnDrop: func(q protocol.Question, err error) {
			fmt.Fprintln(out, "(question not delivered, the chat service is unavailable)")
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	renderer = newTerminalRenderer(out, session.Layout)
	session.Manager.OnStateChange(func(from, to connection.State) {
		if to == connection.StateReconnecting {
			fmt.Fprintln(out, "(reconnecting...)")
		}
	})

	session.Start()
	defer session.Close()

	fmt.Fprintf(out, "Connecting to %s\n", cfg.Client.ChatURL)
	fmt.Fprintln(out, "Type a question and press Enter. /quit to exit.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	for {
		select {
		case <-interrupt:
			fmt.Fprintln(out, "\nInterrupted")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(out, session, line); quit {
				fmt.Fprintln(out, "Bye!")
				return nil
			}
		}
	}
}

// handleLine runs a slash command or submits a question. It reports
// whether the session should end.
func handleLine(out io.Writer, s *chat.Session, line string) bool {
	input := strings.TrimSpace(line)
	switch {
	case input == "/quit":
		return true
	case input == "/panel":
		fmt.Fprintf(out, "(embedded panel open: %v)\n", s.Layout.ToggleEmbedded())
	case input == "/float":
		fmt.Fprintf(out, "(floating widget open: %v)\n", s.Layout.ToggleFloating())
	case strings.HasPrefix(input, "/width"):
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(input, "/width")))
		if err != nil {
			fmt.Fprintln(out, "(usage: /width N)")
			return false
		}
		fmt.Fprintf(out, "(panel width: %d)\n", s.Layout.SetWidth(n))
	case input == "/status":
		st := s.Status()
		fmt.Fprintf(out, "(connection: %s, composing: %v, messages: %d, queued: %d, panel: %v, floating: %v, width: %d)\n",
			st.State, st.Composing, st.Messages, st.Pending, st.EmbeddedOpen, st.FloatingOpen, st.Width)
	default:
		target := s.Embedded
		if s.Layout.FloatingOpen() && !s.Layout.EmbeddedOpen() {
			target = s.Floating
		}
		switch err := target.Submit(input); {
		case errors.Is(err, conversation.ErrEmptyInput):
		case errors.Is(err, conversation.ErrBusy):
			fmt.Fprintln(out, "(still answering, please wait)")
		case err != nil:
			fmt.Fprintf(out, "(error: %v)\n", err)
		}
	}
	return false
}
