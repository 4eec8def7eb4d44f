package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/sagereplay/sagereplay/internal/db"
	"github.com/sagereplay/sagereplay/internal/protocol"
	"github.com/sagereplay/sagereplay/internal/session"
	"github.com/sagereplay/sagereplay/internal/workflow"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	return tw
}

// PrintReport writes the step table of a run followed by its outcome.
func PrintReport(w io.Writer, report *session.Report) {
	fmt.Fprintf(w, "\nSession %s (%s)\n", report.SessionID, report.Username)

	tw := newTable(w, "#", "State", "Target", "Status", "Duration")
	for i, step := range report.Steps {
		status := "-"
		if step.Skipped {
			status = "skipped"
		}
		tw.Append([]string{
			strconv.Itoa(i + 1),
			step.State.String(),
			step.Target,
			status,
			step.Duration.Round(time.Millisecond).String(),
		})
	}
	tw.Render()

	fmt.Fprintf(w, "State: %s  Calls: %d  Sent: %dB  Received: %dB  Took: %s\n",
		report.State, report.Traffic.Calls, report.Traffic.BytesSent, report.Traffic.BytesRecv,
		report.Duration.Round(time.Millisecond))
	if report.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", report.Error)
	}
	if report.Result != nil {
		PrintCharacters(w, report.Result)
	}
}

// PrintCharacters writes the character roster and the selected
// character's detail.
func PrintCharacters(w io.Writer, res *workflow.Result) {
	login := res.Login
	fmt.Fprintf(w, "\nAccount %d  Type: %d  Tokens: %d  Characters: %d\n",
		login.UID, res.Characters.AccountType, res.Characters.Tokens, res.Characters.TotalCharacters)

	if len(res.Characters.Characters) == 0 {
		fmt.Fprintln(w, "No characters on this account.")
		return
	}

	selected := -1
	if res.SelectedIndex != nil {
		selected = *res.SelectedIndex
	}

	tw := newTable(w, "", "ID", "Name", "Level", "Rank", "Gold", "TP")
	for i, ch := range res.Characters.Characters {
		marker := ""
		if i == selected {
			marker = "*"
		}
		tw.Append([]string{
			marker,
			strconv.FormatInt(ch.CharID, 10),
			ch.Name,
			strconv.FormatInt(ch.Level, 10),
			strconv.FormatInt(ch.Rank, 10),
			strconv.FormatInt(ch.Gold, 10),
			strconv.FormatInt(ch.TP, 10),
		})
	}
	tw.Render()

	if data := res.CharacterData; data != nil {
		core := data.Character
		fmt.Fprintf(w, "\n%s (#%d) level %d, xp %d, gold %d, tp %d\n",
			core.Name, core.ID, core.Level, core.XP, core.Gold, core.TP)

		pts := data.Points
		tw := newTable(w, "Wind", "Fire", "Lightning", "Water", "Earth", "Free")
		tw.Append([]string{
			strconv.FormatInt(pts.Wind, 10),
			strconv.FormatInt(pts.Fire, 10),
			strconv.FormatInt(pts.Lightning, 10),
			strconv.FormatInt(pts.Water, 10),
			strconv.FormatInt(pts.Earth, 10),
			strconv.FormatInt(pts.Free, 10),
		})
		tw.Render()
	}
}

// PrintEnvelope writes one row per envelope message with the keys of its
// normalized body.
func PrintEnvelope(w io.Writer, env *protocol.Envelope) {
	fmt.Fprintf(w, "AMF version %d, %d header(s), %d message(s)\n", env.Version, len(env.Headers), env.Len())

	if len(env.Headers) > 0 {
		tw := newTable(w, "Header", "Must Understand", "Kind")
		for _, h := range env.Headers {
			tw.Append([]string{h.Name, strconv.FormatBool(h.MustUnderstand), kindOf(h.Value)})
		}
		tw.Render()
	}

	tw := newTable(w, "Path", "Target", "Status", "Kind", "Fields")
	for _, m := range env.Messages {
		tw.Append([]string{
			m.Path,
			m.Target,
			m.Status.String(),
			kindOf(m.Body),
			strings.Join(protocol.Normalize(m.Body).Keys(), ", "),
		})
	}
	tw.Render()
}

// PrintSessions writes recorded sessions.
func PrintSessions(w io.Writer, sessions []db.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No recorded sessions.")
		return
	}

	tw := newTable(w, "ID", "User", "State", "Failed Step", "Characters", "Started", "Duration")
	for _, s := range sessions {
		tw.Append([]string{
			s.ID,
			s.Username,
			s.State,
			dash(s.FailedStep),
			strconv.Itoa(s.Characters),
			s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			(time.Duration(s.DurationMS) * time.Millisecond).String(),
		})
	}
	tw.Render()
}

func kindOf(v protocol.Value) string {
	if v == nil {
		return "none"
	}
	return v.Kind().String()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
