// Package display renders directory listings and playback items on the
// terminal and collects the user's choices.
package display

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/term"

	"github.com/kodidev/kodidev/internal/nav"
	"github.com/kodidev/kodidev/internal/sandbox"
)

const fallbackWidth = 80

// Query values carrying structured data are hex-encoded behind a marker
// prefix. JSON payloads can be decoded back; pickled payloads cannot and
// are shown as an opaque tag.
const (
	jsonMarker   = "_json_"
	pickleMarker = "_pickle_"
)

var localizeRe = regexp.MustCompile(`\$LOCALIZE\[(\d+)\]`)

// Localize resolves a string id to its text, typically against the
// bundled English language pack.
type Localize func(id int) (string, bool)

// Options configure a Console.
type Options struct {
	// Detailed switches from one-line entries to a full per-item dump.
	Detailed bool
	// NoCrop disables trimming lines to the terminal width.
	NoCrop bool
	// Localize may be nil, in which case $LOCALIZE tags are left as-is.
	Localize Localize
}

// lineResult is one answer read off stdin, or the read error that ended
// the input stream.
type lineResult struct {
	text string
	err  error
}

// Console implements nav.Display and sandbox.HostSession on the
// process's terminal.
type Console struct {
	out      io.Writer
	in       *bufio.Reader
	log      hclog.Logger
	localize Localize
	detailed bool
	crop     bool

	// Input is consumed by a single reader goroutine so blocking reads
	// can be raced against context cancellation.
	readerOnce sync.Once
	lines      chan lineResult

	folder   *color.Color
	playable *color.Color
	header   *color.Color
	warn     *color.Color
	dim      *color.Color
}

func NewConsole(log hclog.Logger, opts Options) *Console {
	return &Console{
		out:      os.Stdout,
		in:       bufio.NewReader(os.Stdin),
		log:      log.Named("display"),
		localize: opts.Localize,
		detailed: opts.Detailed,
		crop:     !opts.NoCrop,
		folder:   color.New(color.FgCyan),
		playable: color.New(color.FgGreen),
		header:   color.New(color.Bold),
		warn:     color.New(color.FgYellow),
		dim:      color.New(color.Faint),
	}
}

// readLine waits for the next line of input, racing the read against the
// context so an interrupt is not swallowed by a blocked terminal read.
func (c *Console) readLine(ctx context.Context) (string, error) {
	c.readerOnce.Do(func() {
		c.lines = make(chan lineResult)
		go func() {
			for {
				line, err := c.in.ReadString('\n')
				c.lines <- lineResult{text: line, err: err}
				if err != nil {
					return
				}
			}
		}()
	})

	select {
	case r := <-c.lines:
		if r.err != nil {
			return "", r.err
		}
		return strings.TrimSpace(r.text), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Choose renders the listing and returns the index of the entry the user
// picked, or nav.ErrQuit via an empty answer.
func (c *Console) Choose(ctx context.Context, items []sandbox.ListItem, state *sandbox.NavState) (int, error) {
	fmt.Fprintln(c.out)
	c.printHeading(state)

	for i, item := range items {
		if c.detailed {
			c.printDetailed(i, item)
		} else {
			c.printCompact(i, item)
		}
	}

	for {
		fmt.Fprintf(c.out, "\nChoose an entry (0-%d) or press enter to quit: ", len(items)-1)
		line, err := c.readLine(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return 0, err
			}
			return 0, nav.ErrQuit
		}
		if line == "" {
			return 0, nav.ErrQuit
		}
		choice, err := strconv.Atoi(line)
		if err != nil || choice < 0 || choice >= len(items) {
			c.warn.Fprintf(c.out, "Not a valid entry: %s\n", line)
			continue
		}
		return choice, nil
	}
}

// Play shows the item the addon resolved for playback, followed by the
// trailing playlist entries queued behind it.
func (c *Console) Play(ctx context.Context, item sandbox.ListItem, playlist []sandbox.ListItem) {
	fmt.Fprintln(c.out)
	c.header.Fprintln(c.out, "Playing:")
	c.playable.Fprintf(c.out, "  %s\n", c.label(item))
	c.printProperties("  ", item)

	if len(playlist) > 0 {
		c.header.Fprintln(c.out, "Up next:")
		for i, entry := range playlist {
			c.playable.Fprintln(c.out, c.cropLine(fmt.Sprintf("  %3d. %s", i+1, c.label(entry))))
			c.printProperties("       ", entry)
		}
	}
	c.waitForEnter(ctx)
}

// Notify reports a session-level event, such as a failed invocation.
func (c *Console) Notify(text string) {
	c.warn.Fprintf(c.out, "\n%s\n", text)
}

// Prompt relays a worker's input request to the user.
func (c *Console) Prompt(ctx context.Context, text string) (string, error) {
	fmt.Fprintf(c.out, "\n%s ", text)
	return c.readLine(ctx)
}

func (c *Console) printHeading(state *sandbox.NavState) {
	heading := state.Category
	if heading == "" {
		heading = state.Path
	}
	if state.ContentType != "" {
		heading = fmt.Sprintf("%s [%s]", heading, state.ContentType)
	}
	c.header.Fprintln(c.out, c.cropLine(heading))
}

func (c *Console) printCompact(i int, item sandbox.ListItem) {
	line := fmt.Sprintf("%3d. %s", i, c.label(item))
	if item.IsFolder() {
		c.folder.Fprintln(c.out, c.cropLine(line+"/"))
	} else {
		c.playable.Fprintln(c.out, c.cropLine(line))
	}
}

func (c *Console) printDetailed(i int, item sandbox.ListItem) {
	c.printCompact(i, item)
	if path := item.Path(); path != "" {
		c.dim.Fprintln(c.out, c.cropLine("     path: "+path))
		for _, kv := range decodeQuery(path) {
			c.dim.Fprintln(c.out, c.cropLine("       "+kv))
		}
	}
	c.printProperties("     ", item)
}

// printProperties dumps everything on the item except the keys already
// rendered elsewhere, in a stable order.
func (c *Console) printProperties(indent string, item sandbox.ListItem) {
	if !c.detailed {
		return
	}
	keys := make([]string, 0, len(item))
	for k := range item {
		if k == "label" || k == "path" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.dim.Fprintln(c.out, c.cropLine(fmt.Sprintf("%s%s: %v", indent, k, item[k])))
	}
}

func (c *Console) label(item sandbox.ListItem) string {
	label := item.Label()
	if c.localize == nil {
		return label
	}
	return localizeRe.ReplaceAllStringFunc(label, func(tag string) string {
		match := localizeRe.FindStringSubmatch(tag)
		id, err := strconv.Atoi(match[1])
		if err != nil {
			return tag
		}
		if text, ok := c.localize(id); ok {
			return text
		}
		return tag
	})
}

// cropLine trims a line to the terminal width so long paths do not wrap
// and break the listing.
func (c *Console) cropLine(line string) string {
	if !c.crop {
		return line
	}
	width := fallbackWidth
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	// Measure and cut in runes, not bytes, or a multibyte title gets
	// split mid-character.
	runes := []rune(line)
	if len(runes) <= width {
		return line
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}

func (c *Console) waitForEnter(ctx context.Context) {
	fmt.Fprint(c.out, "\nPress enter to go back. ")
	_, _ = c.readLine(ctx)
}

// decodeQuery renders a callback URL's query parameters, decoding
// hex-encoded structured values where possible.
func decodeQuery(rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return nil
	}
	values, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		for _, v := range values[k] {
			out = append(out, fmt.Sprintf("%s = %s", k, decodeValue(v)))
		}
	}
	return out
}

func decodeValue(v string) string {
	switch {
	case strings.HasPrefix(v, jsonMarker):
		raw, err := hex.DecodeString(strings.TrimPrefix(v, jsonMarker))
		if err != nil {
			return v
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return v
		}
		return fmt.Sprintf("%v", decoded)
	case strings.HasPrefix(v, pickleMarker):
		return "<pickled data>"
	default:
		return v
	}
}
