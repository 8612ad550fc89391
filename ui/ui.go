// Package ui provides a terminal user interface for watching handshake
// events: a system log, the event stream, SYN / SYN-ACK / lost counters and
// a command line for filtering, built on tview.
package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"synwatch/event"
	"synwatch/tccollector/utility"
)

const MaxLines = 100 // keep the last 100 entries, exported

var printer = message.NewPrinter(language.English)

// ChannelWriter funnels log output into the System Log pane.
type ChannelWriter struct{ Ch chan string }

// Write implements the io.Writer interface for our channel.
func (w ChannelWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	w.Ch <- msg
	return len(p), nil
}

// Counts is one snapshot of the counter row.
type Counts struct {
	SYN    uint64
	SYNACK uint64
	Lost   uint64
}

// View holds the application and the widgets callers feed.
type View struct {
	App        *tview.Application
	Layout     *tview.Flex
	SysView    *tview.TextView
	EventView  *tview.TextView
	SYNView    *tview.TextView
	SYNACKView *tview.TextView
	LostView   *tview.TextView
	Input      *tview.InputField
}

// SetupUI creates and configures the tview application, views, and layout.
func SetupUI() *View {
	app := tview.NewApplication()

	sysView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetChangedFunc(func() { app.Draw() })
	sysView.SetBorder(true).SetTitle(" System Log ")

	eventView := tview.NewTextView().
		SetScrollable(true).
		SetChangedFunc(func() { app.Draw() })
	eventView.SetBorder(true).SetTitle(" Handshakes [all] ")

	counter := func(title string) *tview.TextView {
		tv := tview.NewTextView().
			SetTextAlign(tview.AlignCenter).
			SetChangedFunc(func() { app.Draw() })
		tv.SetBorder(true).SetTitle(title)
		return tv
	}
	synView := counter(" SYN ")
	synAckView := counter(" SYN-ACK ")
	lostView := counter(" Lost ")

	input := tview.NewInputField().
		SetLabel("Command: ").
		SetPlaceholder("port <n> | pid <n> | clear | pause | resume").
		SetFieldWidth(0)

	bottomFlex := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(synView, 0, 1, false).
		AddItem(synAckView, 0, 1, false).
		AddItem(lostView, 0, 1, false).
		AddItem(input, 0, 3, true)

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(sysView, 0, 2, false).
		AddItem(eventView, 0, 4, false).
		AddItem(bottomFlex, 3, 1, true)

	return &View{
		App:        app,
		Layout:     layout,
		SysView:    sysView,
		EventView:  eventView,
		SYNView:    synView,
		SYNACKView: synAckView,
		LostView:   lostView,
		Input:      input,
	}
}

// BindCommands runs every entered command against filter and reports the
// outcome on sysChan.
func (v *View) BindCommands(filter *Filter, sysChan chan<- string) {
	v.Input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := v.Input.GetText()
		v.Input.SetText("")
		if strings.TrimSpace(text) == "" {
			return
		}
		sysChan <- RunCommand(filter, text)
		v.EventView.SetTitle(fmt.Sprintf(" Handshakes [%s] ", filter.Describe()))
		if cmd, err := utility.ParseCommand(text); err == nil && cmd.Op == utility.OpClear {
			v.EventView.Clear()
		}
		v.App.SetFocus(v.Input)
	})
}

// RunCommand parses and applies one command line, returning the line to
// show in the system log.
func RunCommand(filter *Filter, text string) string {
	cmd, err := utility.ParseCommand(text)
	if err != nil {
		return fmt.Sprintf("[ERROR] %v", err)
	}
	status, err := filter.Apply(cmd)
	if err != nil {
		return fmt.Sprintf("[ERROR] %s failed: %v", cmd.Op, err)
	}
	return fmt.Sprintf("[SYS] %s", status)
}

// EventFeeder returns a handler that formats matching events onto ch. A
// full channel drops the line so the reader is never stalled by the UI.
func EventFeeder(filter *Filter, ch chan<- string) func(event.Handshake) {
	return func(ev event.Handshake) {
		if !filter.Match(ev) {
			return
		}
		select {
		case ch <- FormatEventLine(ev):
		default:
		}
	}
}

// PumpTextview reads lines from a channel and updates a tview.TextView, keeping only MaxLines.
func PumpTextview(app *tview.Application, view *tview.TextView, ch <-chan string, buffer *[]string) {
	for line := range ch {
		*buffer = append(*buffer, line)
		if len(*buffer) > MaxLines {
			*buffer = (*buffer)[1:]
		}
		text := strings.Join(*buffer, "\n")
		app.QueueUpdateDraw(func() {
			view.SetText(text)
			view.ScrollToEnd()
		})
	}
}

// PumpCounters reads count snapshots from a channel and updates the counter row.
func (v *View) PumpCounters(ch <-chan Counts) {
	for c := range ch {
		app := v.App
		app.QueueUpdateDraw(func() {
			v.SYNView.SetText(FormatCount(c.SYN))
			v.SYNACKView.SetText(FormatCount(c.SYNACK))
			v.LostView.SetText(FormatCount(c.Lost))
		})
	}
}

// FormatCount renders n with thousands separators.
func FormatCount(n uint64) string {
	return printer.Sprintf("%d", n)
}
