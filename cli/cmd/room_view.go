package cmd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/hazavi/yumekai-sub000/cli/client"
	"github.com/hazavi/yumekai-sub000/server/domain"
)

type inputKind int

const (
	inputChat inputKind = iota
	inputPlay
	inputPause
	inputSeek
	inputEpisode
	inputAnime
	inputLeave
	inputHelp
)

type roomInput struct {
	kind    inputKind
	text    string
	slug    string
	episode int
	seconds float64
}

const roomHelp = "/play  /pause  /seek <seconds>  /ep <n>  /anime <slug>  /leave"

var errUnknownCommand = errors.New("unknown command, try /help")

// parseInput turns one line of the input field into a chat message or a
// slash command.
func parseInput(line string) (roomInput, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return roomInput{kind: inputChat, text: line}, nil
	}
	fields := strings.Fields(line)
	arg := func() (string, error) {
		if len(fields) != 2 {
			return "", fmt.Errorf("usage: %s <value>", fields[0])
		}
		return fields[1], nil
	}
	switch fields[0] {
	case "/play":
		return roomInput{kind: inputPlay}, nil
	case "/pause":
		return roomInput{kind: inputPause}, nil
	case "/leave", "/quit":
		return roomInput{kind: inputLeave}, nil
	case "/help":
		return roomInput{kind: inputHelp}, nil
	case "/seek":
		v, err := arg()
		if err != nil {
			return roomInput{}, err
		}
		seconds, err := parseTimestamp(v)
		if err != nil {
			return roomInput{}, err
		}
		return roomInput{kind: inputSeek, seconds: seconds}, nil
	case "/ep":
		v, err := arg()
		if err != nil {
			return roomInput{}, err
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return roomInput{}, fmt.Errorf("invalid episode %q", v)
		}
		return roomInput{kind: inputEpisode, episode: n}, nil
	case "/anime":
		v, err := arg()
		if err != nil {
			return roomInput{}, err
		}
		return roomInput{kind: inputAnime, slug: v}, nil
	}
	return roomInput{}, errUnknownCommand
}

// parseTimestamp accepts plain seconds or m:ss.
func parseTimestamp(v string) (float64, error) {
	if m, s, ok := strings.Cut(v, ":"); ok {
		minutes, err1 := strconv.Atoi(m)
		seconds, err2 := strconv.ParseFloat(s, 64)
		if err1 != nil || err2 != nil || minutes < 0 || seconds < 0 || seconds >= 60 {
			return 0, fmt.Errorf("invalid position %q", v)
		}
		return float64(minutes*60) + seconds, nil
	}
	seconds, err := strconv.ParseFloat(v, 64)
	if err != nil || seconds < 0 || math.IsInf(seconds, 0) || math.IsNaN(seconds) {
		return 0, fmt.Errorf("invalid position %q", v)
	}
	return seconds, nil
}

// playbackPosition extrapolates the host's last broadcast position to now.
func playbackPosition(v domain.VideoState, now time.Time) float64 {
	if !v.IsPlaying || v.LastUpdated == 0 {
		return v.CurrentTime
	}
	elapsed := now.Sub(time.UnixMilli(v.LastUpdated)).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return v.CurrentTime + elapsed
}

func formatPosition(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func renderHeader(room domain.Room, me string, unread int, now time.Time) string {
	var b strings.Builder
	lock := ""
	if room.IsPrivate {
		lock = " [yellow](private)[white]"
	}
	fmt.Fprintf(&b, "[::b]%s[::-]%s  %d/%d watching", tview.Escape(room.Name), lock, room.ParticipantCount(), room.MaxParticipants)
	if room.IsHost(me) {
		b.WriteString("  [green]you are the host[white]")
	} else if room.HostName != "" {
		fmt.Fprintf(&b, "  host: %s", tview.Escape(room.HostName))
	}
	if unread > 0 {
		fmt.Fprintf(&b, "  [red]%d new[white]", unread)
	}
	b.WriteString("\n")
	if room.Anime == nil {
		b.WriteString("[gray]no episode selected[white]")
		return b.String()
	}
	state := "paused"
	if room.VideoState.IsPlaying {
		state = "playing"
	}
	fmt.Fprintf(&b, "%s  ep %d/%d  %s %s\n[gray]%s[white]",
		tview.Escape(room.Anime.Title), room.Anime.CurrentEpisode, room.Anime.TotalEpisodes,
		state, formatPosition(playbackPosition(room.VideoState, now)),
		tview.Escape(room.Anime.IframeSrc))
	return b.String()
}

func renderParticipants(room domain.Room) string {
	var b strings.Builder
	for _, p := range room.SortedParticipants() {
		marker := "  "
		if p.IsHost {
			marker = "★ "
		}
		fmt.Fprintf(&b, "%s%s\n", marker, tview.Escape(p.DisplayName))
	}
	return b.String()
}

func renderMessage(m domain.ChatMessage) string {
	return fmt.Sprintf("[white][%s] [blue]%s[white]: %s\n",
		time.UnixMilli(m.Timestamp).Format("15:04:05"),
		tview.Escape(m.DisplayName),
		tview.Escape(m.Message))
}

// runRoomUI shows the room until the user leaves or the room goes away.
func runRoomUI(session *client.Session, me domain.Identity, roomID string) error {
	app := tview.NewApplication()

	header := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	header.SetBorder(true)

	chatView := tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true).
		SetScrollable(true).
		ScrollToEnd()

	people := tview.NewTextView().SetDynamicColors(true)
	people.SetBorder(true).SetTitle("watching")

	inputField := tview.NewInputField().
		SetLabel(me.DisplayName + " ❯❯ ").
		SetFieldWidth(0).
		SetAcceptanceFunc(tview.InputFieldMaxLength(domain.MaxMessageLength))

	body := tview.NewFlex().
		AddItem(chatView, 0, 1, false).
		AddItem(people, 24, 0, false)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 5, 0, false).
		AddItem(body, 0, 1, false).
		AddItem(inputField, 1, 0, true)

	app.SetRoot(flex, true).SetFocus(inputField)

	var (
		current  domain.Room
		haveRoom bool
		lastID   string
		unread   domain.UnreadCounter
	)
	redraw := func() {
		if haveRoom {
			header.SetText(renderHeader(current, me.UID, unread.Unread(), time.Now()))
			people.SetText(renderParticipants(current))
		}
	}
	notice := func(color, format string, args ...any) {
		app.QueueUpdateDraw(func() {
			fmt.Fprintf(chatView, "[%s]%s[white]\n", color, tview.Escape(fmt.Sprintf(format, args...)))
			chatView.ScrollToEnd()
		})
	}

	go func() {
		for ev := range session.Events() {
			if ev.RoomID != roomID {
				continue
			}
			if ev.Closed {
				notice("red", "The room was closed.")
				time.Sleep(time.Second)
				app.Stop()
				return
			}
			room := *ev.Room
			app.QueueUpdateDraw(func() {
				current, haveRoom = room, true
				for _, m := range room.MessagesAfter(lastID) {
					fmt.Fprint(chatView, renderMessage(m))
					lastID = m.ID
				}
				unread.Observe(len(room.Messages))
				redraw()
				chatView.ScrollToEnd()
			})
		}
		if err := session.Err(); err != nil {
			notice("red", "Connection lost: %v", err)
		}
	}()

	// Keep the extrapolated playback position moving.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				app.QueueUpdateDraw(redraw)
			case <-done:
				return
			}
		}
	}()

	fmt.Fprintf(chatView, "[green]Welcome to %s! You are %s. Type /help for commands. (Ctrl+C to exit)\n", roomID, tview.Escape(me.DisplayName))

	run := func(in roomInput, position float64) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var err error
		switch in.kind {
		case inputChat:
			err = session.Chat(ctx, in.text)
		case inputPlay, inputPause:
			playing := in.kind == inputPlay
			err = session.UpdateVideo(ctx, &position, &playing)
		case inputSeek:
			err = session.UpdateVideo(ctx, &in.seconds, nil)
		case inputEpisode:
			err = session.ChangeEpisode(ctx, in.episode)
		case inputAnime:
			err = session.SelectAnime(ctx, in.slug)
		case inputLeave:
			if err = session.Leave(ctx); err == nil {
				app.Stop()
				return
			}
		}
		if err != nil {
			notice("red", "%v", err)
		}
	}

	inputField.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		line := strings.TrimSpace(inputField.GetText())
		inputField.SetText("")
		unread.MarkSeen()
		redraw()
		if line == "" {
			return
		}
		in, err := parseInput(line)
		if err != nil {
			fmt.Fprintf(chatView, "[red]%s[white]\n", tview.Escape(err.Error()))
			return
		}
		if in.kind == inputHelp {
			fmt.Fprintf(chatView, "[gray]%s[white]\n", roomHelp)
			return
		}
		go run(in, playbackPosition(current.VideoState, time.Now()))
	})

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC {
			app.Stop()
			return nil
		}
		return event
	})

	return app.Run()
}
