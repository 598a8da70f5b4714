package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/flamingo/go/internal/game"
	"github.com/mcdev12/flamingo/go/internal/session"
	"github.com/mcdev12/flamingo/go/internal/stroke"
)

var errQuit = errors.New("quit")

type commandKind int

const (
	cmdGuess commandKind = iota
	cmdName
	cmdStart
	cmdPick
	cmdAck
	cmdReconnect
	cmdStatus
	cmdStyle
	cmdLine
	cmdHelp
	cmdQuit
)

type command struct {
	kind  commandKind
	arg   string
	style stroke.Style
	line  [2]stroke.Point
}

const helpText = `commands:
  /name <name>             set your display name
  /start                   start the game (host only)
  /pick <word>             choose the word to draw
  /ack <phase>             acknowledge a phase change
  /color <#rrggbb> [width] change the pen
  /line x1 y1 x2 y2        draw a straight stroke in canvas coordinates
  /status                  show players, scores and the timer
  /reconnect               drop and re-establish the connection
  /quit                    leave
anything else is sent as a guess`

func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdGuess, arg: line}, nil
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	fields := strings.Fields(rest)

	switch name {
	case "name":
		return command{kind: cmdName, arg: rest}, nil
	case "start":
		return command{kind: cmdStart}, nil
	case "pick":
		if rest == "" {
			return command{}, errors.New("usage: /pick <word>")
		}
		return command{kind: cmdPick, arg: rest}, nil
	case "ack":
		if rest == "" {
			return command{}, errors.New("usage: /ack <phase>")
		}
		return command{kind: cmdAck, arg: rest}, nil
	case "color":
		if len(fields) == 0 || len(fields) > 2 {
			return command{}, errors.New("usage: /color <#rrggbb> [width]")
		}
		style := stroke.Style{Color: fields[0]}
		if len(fields) == 2 {
			width, err := strconv.ParseFloat(fields[1], 64)
			if err != nil || width <= 0 {
				return command{}, fmt.Errorf("invalid width %q", fields[1])
			}
			style.LineWidth = width
		}
		return command{kind: cmdStyle, style: style}, nil
	case "line":
		if len(fields) != 4 {
			return command{}, errors.New("usage: /line x1 y1 x2 y2")
		}
		var coords [4]float64
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return command{}, fmt.Errorf("invalid coordinate %q", f)
			}
			coords[i] = v
		}
		return command{kind: cmdLine, line: [2]stroke.Point{
			{X: coords[0], Y: coords[1]},
			{X: coords[2], Y: coords[3]},
		}}, nil
	case "status":
		return command{kind: cmdStatus}, nil
	case "reconnect":
		return command{kind: cmdReconnect}, nil
	case "help":
		return command{kind: cmdHelp}, nil
	case "quit", "exit":
		return command{kind: cmdQuit}, nil
	}
	return command{}, fmt.Errorf("unknown command /%s, try /help", name)
}

// Terminal drives a session from line-based input and prints what changes
type Terminal struct {
	session *session.Session
	out     io.Writer
	clock   clockwork.Clock
	canvas  stroke.Size

	// only touched from the session loop
	stage     session.Stage
	phase     game.Phase
	chat      []game.ChatMessage
	lastError string
}

func NewTerminal(s *session.Session, out io.Writer, canvas stroke.Size) *Terminal {
	return &Terminal{session: s, out: out, clock: clockwork.NewRealClock(), canvas: canvas}
}

// OnStatus prints stage changes, phase changes and new chat lines. Pass it to session.Subscribe.
func (t *Terminal) OnStatus(status session.Status) {
	if status.Stage != t.stage {
		t.stage = status.Stage
		switch status.Stage {
		case session.StageConnecting:
			fmt.Fprintln(t.out, "* connecting...")
		case session.StageEnterName:
			fmt.Fprintln(t.out, "* connected, choose a name with /name <name>")
		case session.StageJoining:
			fmt.Fprintln(t.out, "* joining as", status.SelfName)
		case session.StageInGame:
			fmt.Fprintf(t.out, "* joined room %s\n", status.RoomID)
		}
	}

	if status.LastError != "" && status.LastError != t.lastError {
		fmt.Fprintln(t.out, "! "+status.LastError)
	}
	t.lastError = status.LastError

	state := status.State
	if state.Phase != t.phase {
		t.phase = state.Phase
		t.printPhase(state)
	}

	for _, msg := range newChatLines(t.chat, state.Chat) {
		if msg.IsSystem {
			fmt.Fprintf(t.out, "* %s\n", msg.Message)
		} else {
			fmt.Fprintf(t.out, "<%s> %s\n", msg.SenderName, msg.Message)
		}
	}
	t.chat = state.Chat
}

func (t *Terminal) printPhase(state game.State) {
	switch state.Phase {
	case game.PhaseLobby:
		fmt.Fprintln(t.out, "* waiting in the lobby")
		if state.IsHost() {
			fmt.Fprintln(t.out, "* you are the host, /start when everyone is here")
		}
	case game.PhaseWordChoice:
		if state.IsDrawer() {
			fmt.Fprintf(t.out, "* your turn to draw, /pick one of: %s\n", strings.Join(state.WordChoices, ", "))
		} else {
			fmt.Fprintln(t.out, "* the drawer is choosing a word")
		}
	case game.PhaseGuessing:
		if word, ok := state.Word(); ok {
			fmt.Fprintf(t.out, "* draw %q\n", word)
		} else if n, ok := state.WordLength(); ok {
			fmt.Fprintf(t.out, "* guess the word (%d letters)\n", n)
		}
	case game.PhaseBetweenTurns:
		fmt.Fprintf(t.out, "* the word was %q\n", state.RevealedWord)
	case game.PhaseGameEnd:
		fmt.Fprintln(t.out, "* game over")
		t.printPlayers(state)
	}
}

func (t *Terminal) printPlayers(state game.State) {
	players := slices.Clone(state.Players)
	slices.SortStableFunc(players, func(a, b game.Player) int { return b.Score - a.Score })
	for _, p := range players {
		marker := " "
		switch {
		case p.ID == state.CurrentDrawerID:
			marker = "✎"
		case p.HasGuessedCorrectly:
			marker = "✓"
		}
		host := ""
		if p.IsHost {
			host = " (host)"
		}
		fmt.Fprintf(t.out, "  %s %-16s %5d%s\n", marker, p.Name, p.Score, host)
	}
}

func (t *Terminal) printStatus() {
	status := t.session.Status()
	state := status.State
	fmt.Fprintf(t.out, "room %s, %s, phase %s\n", status.RoomID, status.Stage, state.Phase)
	if state.HasDeadline() {
		fmt.Fprintf(t.out, "time left: %s\n", state.TimeRemaining(t.clock).Round(time.Second))
	}
	if hint := state.Hint(); hint != "" {
		fmt.Fprintf(t.out, "hint: %s\n", hint)
	}
	t.printPlayers(state)
}

// Run reads commands from in until EOF, /quit or ctx is done
func (t *Terminal) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			err := t.Execute(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				fmt.Fprintln(t.out, "! "+err.Error())
			}
		}
	}
}

// Execute runs a single input line against the session
func (t *Terminal) Execute(ctx context.Context, line string) error {
	cmd, err := parseCommand(line)
	if err != nil {
		return err
	}

	switch cmd.kind {
	case cmdGuess:
		return t.session.Guess(ctx, cmd.arg)
	case cmdName:
		return t.session.SetName(ctx, cmd.arg)
	case cmdStart:
		return t.session.StartGame(ctx)
	case cmdPick:
		return t.session.SelectWord(ctx, cmd.arg)
	case cmdAck:
		return t.session.AckPhase(ctx, cmd.arg)
	case cmdReconnect:
		return t.session.Reconnect(ctx)
	case cmdStyle:
		return t.session.SetStyle(ctx, cmd.style)
	case cmdLine:
		return t.drawLine(ctx, cmd.line[0], cmd.line[1])
	case cmdStatus:
		t.printStatus()
	case cmdHelp:
		fmt.Fprintln(t.out, helpText)
	case cmdQuit:
		return errQuit
	}
	return nil
}

// drawLine feeds a straight stroke through the pointer path, in canvas coordinates
func (t *Terminal) drawLine(ctx context.Context, from, to stroke.Point) error {
	rect := stroke.Rect{Width: t.canvas.Width, Height: t.canvas.Height}
	if err := t.session.PointerDown(ctx, from, rect); err != nil {
		return err
	}
	if err := t.session.PointerMove(ctx, to, rect); err != nil {
		return err
	}
	return t.session.PointerUp(ctx)
}

// newChatLines returns the lines of cur not yet seen in prev. The transcript only grows
// at the end and drops from the front, so the longest prefix of cur that is a suffix of
// prev has been printed already.
func newChatLines(prev, cur []game.ChatMessage) []game.ChatMessage {
	for n := min(len(cur), len(prev)); n > 0; n-- {
		if slices.Equal(cur[:n], prev[len(prev)-n:]) {
			return cur[n:]
		}
	}
	return cur
}
