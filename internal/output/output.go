// Package output renders draw reports for the terminal and for files.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"giveaway/internal/domain"
	"giveaway/internal/lottery"
)

const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
)

type Metadata struct {
	URL       string            `json:"tweet_url,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Filters   domain.FilterSpec `json:"filters"`
}

// Report is everything a finished draw can show.
type Report struct {
	Result       domain.DrawResult       `json:"result"`
	Statistics   domain.Statistics       `json:"statistics"`
	Participants []domain.Participant    `json:"participants,omitempty"`
	Validation   domain.ValidationReport `json:"validation"`
	Metadata     Metadata                `json:"metadata"`
}

type Renderer struct {
	Format string
	W      io.Writer
}

func (r Renderer) writer() io.Writer {
	if r.W == nil {
		return os.Stdout
	}
	return r.W
}

func (r Renderer) Render(rep Report) error {
	switch strings.ToLower(r.Format) {
	case FormatJSON:
		enc := json.NewEncoder(r.writer())
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case FormatCSV:
		return writeCSV(r.writer(), rep.Result)
	case FormatText, "":
		return writeText(r.writer(), rep)
	}
	return domain.Errorf(domain.ErrConfiguration, "unknown output format %q", r.Format)
}

var rule = strings.Repeat("=", 50)
var thinRule = strings.Repeat("-", 30)

// Kind labels for the statistics block.
var kindLabels = map[domain.InteractionKind]string{
	domain.KindRetweet:  "Retweeters",
	domain.KindLike:     "Likers",
	domain.KindFollower: "Followers",
}

func writeText(w io.Writer, rep Report) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nLOTTERY RESULTS\n%s\n\n", rule, rule)

	stats := rep.Statistics
	fmt.Fprintf(&b, "STATISTICS:\n%s\n", thinRule)
	fmt.Fprintf(&b, "Total Participants: %d\n", stats.Total)
	for _, k := range domain.Kinds() {
		if n := stats.PerKind[k]; n > 0 {
			fmt.Fprintf(&b, "%s: %d\n", kindLabels[k], n)
		}
	}
	if stats.MultiKind > 0 {
		fmt.Fprintf(&b, "Multiple Actions: %d\n", stats.MultiKind)
	}
	b.WriteString("\n")

	weighted := rep.Result.Method == lottery.MethodWeighted
	if len(rep.Result.Winners) > 0 {
		fmt.Fprintf(&b, "WINNERS:\n")
		tw := table.NewWriter()
		header := table.Row{"#", "Username", "Types"}
		if weighted {
			header = append(header, "Weight")
		}
		tw.AppendHeader(header)
		for _, win := range rep.Result.Winners {
			row := table.Row{win.Rank, "@" + win.Identifier, joinKinds(win.Kinds)}
			if weighted {
				row = append(row, win.Weight)
			}
			tw.AppendRow(row)
		}
		b.WriteString(tw.Render())
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "METADATA:\n%s\n", thinRule)
	method := rep.Result.Method
	if method == "" {
		method = lottery.MethodRandom
	}
	fmt.Fprintf(&b, "Draw Method: %s\n", method)
	fmt.Fprintf(&b, "Timestamp: %s\n", rep.Metadata.Timestamp.UTC().Format(time.RFC3339))
	if rep.Metadata.URL != "" {
		fmt.Fprintf(&b, "Tweet: %s\n", rep.Metadata.URL)
	}
	fmt.Fprintf(&b, "Seed: %d\n", rep.Result.Seed)
	fmt.Fprintf(&b, "\n%s\n", rule)

	_, err := io.WriteString(w, b.String())
	return err
}

func joinKinds(kinds []domain.InteractionKind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}

var csvHeader = []string{"Rank", "Username", "Participation Types", "Weight", "Draw Time"}

func writeCSV(w io.Writer, res domain.DrawResult) error {
	if len(res.Winners) == 0 {
		return domain.Errorf(domain.ErrEmptyInput, "no winners to export to CSV")
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, win := range res.Winners {
		weight := win.Weight
		if weight <= 0 {
			weight = 1
		}
		if err := cw.Write([]string{
			strconv.Itoa(win.Rank),
			win.Identifier,
			joinKinds(win.Kinds),
			strconv.Itoa(weight),
			win.DrawnAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Summary is the trimmed record written by WriteFile.
type Summary struct {
	Winners      []string  `json:"winners"`
	Participants []string  `json:"participants"`
	Seed         int64     `json:"seed"`
	Timestamp    time.Time `json:"timestamp"`
}

func Summarize(rep Report) Summary {
	s := Summary{
		Winners:      make([]string, 0, len(rep.Result.Winners)),
		Participants: make([]string, 0, len(rep.Participants)),
		Seed:         rep.Result.Seed,
		Timestamp:    rep.Metadata.Timestamp.UTC(),
	}
	for _, w := range rep.Result.Winners {
		s.Winners = append(s.Winners, w.Identifier)
	}
	for _, p := range rep.Participants {
		s.Participants = append(s.Participants, p.Identifier)
	}
	return s
}

// WriteFile saves the summary of rep as indented JSON.
func WriteFile(path string, rep Report) error {
	data, err := json.MarshalIndent(Summarize(rep), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// RenderError prints an aborted run as "ERROR [<kind>]: <reason>".
func RenderError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "ERROR [%s]: %s\n", domain.KindName(err), domain.Reason(err))
}
