package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/rcliao/recall/internal/agent"
	"github.com/rcliao/recall/internal/chat"
	"github.com/rcliao/recall/internal/logger"
)

var (
	colorMuted  = lipgloss.Color("#636B78")
	colorBlue   = lipgloss.Color("#61AFEF")
	colorGreen  = lipgloss.Color("#98C379")
	colorYellow = lipgloss.Color("#E5C07B")
	colorRed    = lipgloss.Color("#E06C75")

	bannerStyle = lipgloss.NewStyle().
			Foreground(colorBlue).
			Bold(true)

	promptStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	noteStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Italic(true)

	memoryStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed)
)

const closeTimeout = time.Minute

func init() {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Run:   runChat,
	}

	cmd.Flags().StringP("resume", "r", "", "Resume an existing session by id")

	RootCmd.AddCommand(cmd)
}

func runChat(cmd *cobra.Command, args []string) {
	resumeID, _ := cmd.Flags().GetString("resume")

	a := openApp()
	defer a.Close()

	completer, err := a.completer()
	if err != nil {
		exitErr("completion", err)
	}
	tools, err := a.toolbox()
	if err != nil {
		exitErr("tools", err)
	}

	deps := chat.Deps{
		Store:          a.store,
		Assembler:      a.assembler(),
		Agent:          agent.New(completer, tools, a.log),
		Completer:      completer,
		Memory:         a.memory,
		Index:          a.semantic,
		Log:            a.log,
		RecentSessions: a.cfg.Context.RecentSessions,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var sess *chat.Session
	if resumeID != "" {
		sess, err = chat.Resume(ctx, deps, resumeID)
	} else {
		sess, err = chat.Start(ctx, deps)
	}
	if err != nil {
		exitErr("start session", err)
	}

	banner := "recall"
	if sess.Title() != "" {
		banner += ": " + sess.Title()
	}
	fmt.Println(bannerStyle.Render(banner))
	fmt.Println(noteStyle.Render("session " + sess.ID() + ". Type /exit or press Ctrl-D to leave."))

	lines := readLines(os.Stdin)
	for {
		fmt.Print(promptStyle.Render("you> "))

		var line string
		var ok bool
		select {
		case <-ctx.Done():
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Println()
			break
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "/exit" || input == "/quit" {
			break
		}

		res, err := sess.Turn(ctx, input, func(tok string) { fmt.Print(tok) })
		fmt.Println()
		if err != nil {
			fmt.Println(errorStyle.Render("error: " + err.Error()))
			if ctx.Err() != nil {
				break
			}
		}
		if res == nil {
			continue
		}
		for _, fact := range res.SavedFacts {
			fmt.Println(memoryStyle.Render("remembered: " + fact))
		}
		if res.Exhausted {
			fmt.Println(noteStyle.Render(fmt.Sprintf("stopped after %d tool rounds", res.Rounds)))
		}
	}

	// The chat context may already be cancelled; closing still needs to
	// write the summary.
	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := sess.Close(closeCtx); err != nil {
		a.log.Error("close session", logger.StringField("session_id", sess.ID()), logger.ErrorField(err))
	}
}

// readLines feeds stdin lines to a channel so the loop can also watch for
// interrupts. The channel is closed at EOF.
func readLines(f *os.File) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		r := bufio.NewReader(f)
		for {
			line, err := r.ReadString('\n')
			if line != "" {
				out <- line
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}
