package transport

import (
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// BarProgress implements Progress by rendering sideband channel 2 lines
// through a progressbar/v3 bar, the way a CLI front end over this
// engine would show "Receiving objects: 42% (210/500)" during a fetch.
// Channel 3 (error) lines are written verbatim to Err.
type BarProgress struct {
	Out io.Writer
	Err io.Writer

	mu    sync.Mutex
	bar   *progressbar.ProgressBar
	total int
}

// Progress parses a git-style "<label>: NN% (a/b)" progress line and
// updates the bar, creating one lazily on first use and replacing it
// whenever the total changes (git reports several distinct phases —
// "Counting objects", "Compressing objects", "Receiving objects" — each
// restarting the count from zero).
func (p *BarProgress) Progress(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	label, cur, total, ok := parseGitProgress(line)
	if !ok {
		return
	}
	if p.bar == nil || p.total != total {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.out()),
			progressbar.OptionSetDescription(label),
			progressbar.OptionClearOnFinish(),
		)
		p.total = total
	}
	_ = p.bar.Set(cur)
}

// Error writes an error-channel line to Err.
func (p *BarProgress) Error(line string) {
	if p.Err != nil {
		io.WriteString(p.Err, line)
	}
}

func (p *BarProgress) out() io.Writer {
	if p.Out != nil {
		return p.Out
	}
	return io.Discard
}

// parseGitProgress parses the "<label>: NN% (cur/total)" shape git's
// own progress-channel lines use (e.g. "Receiving objects:  42% (21/50)").
func parseGitProgress(line string) (label string, cur, total int, ok bool) {
	line = strings.TrimRight(line, "\r\n")
	lparen := strings.LastIndexByte(line, '(')
	rparen := strings.LastIndexByte(line, ')')
	if lparen < 0 || rparen <= lparen {
		return "", 0, 0, false
	}
	colon := strings.IndexByte(line, ':')
	if colon < 0 || colon >= lparen {
		return "", 0, 0, false
	}
	label = strings.TrimSpace(line[:colon])

	fraction := line[lparen+1 : rparen]
	parts := strings.SplitN(fraction, "/", 2)
	if len(parts) != 2 {
		return "", 0, 0, false
	}
	cur, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	total, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return "", 0, 0, false
	}
	return label, cur, total, true
}
