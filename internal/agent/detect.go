package agent

import (
	"strings"
)

// Param is one inner <name>value</name> tag of a tool call.
type Param struct {
	Name  string
	Value string
}

// ToolCall is a tool invocation found in model output: an outer
// <name>…</name> span whose name is a registered tool.
type ToolCall struct {
	Name string
	// Params in the order they appeared.
	Params []Param
}

// Get returns the value of the named parameter. When a parameter is
// repeated the last value wins.
func (c *ToolCall) Get(name string) (string, bool) {
	for i := len(c.Params) - 1; i >= 0; i-- {
		if c.Params[i].Name == name {
			return c.Params[i].Value, true
		}
	}
	return "", false
}

// Args returns the parameters as a dispatch argument map.
func (c *ToolCall) Args() map[string]any {
	args := make(map[string]any, len(c.Params))
	for _, p := range c.Params {
		args[p.Name] = p.Value
	}
	return args
}

type openTag struct {
	name  string
	start int // index of '<'
	end   int // index just past '>'
	// from is where the search for the closing tag resumes.
	from int
}

// Detector finds the first tool call in text that arrives in fragments.
// The match is the earliest opening tag of a recognized name that has a
// matching closing tag after it; the first such closing tag ends the
// span. Feeding fragments gives the same answer after every fragment as
// scanning the whole accumulated text would, but each byte is examined
// a bounded number of times.
type Detector struct {
	names map[string]bool

	buf   strings.Builder
	opens []openTag
	// scanned is where the search for opening tags resumes. It stays
	// on a '<' whose tag is not yet complete.
	scanned int
	match   *ToolCall
}

// NewDetector creates a detector recognizing the given tool names.
func NewDetector(names []string) *Detector {
	d := &Detector{names: make(map[string]bool, len(names))}
	for _, n := range names {
		if n == "" {
			continue
		}
		d.names[n] = true
	}
	return d
}

// Detect scans s in one pass.
func Detect(names []string, s string) (*ToolCall, bool) {
	return NewDetector(names).Feed(s)
}

// Feed appends a fragment and reports the first tool call found so far.
// Once a call is found, later fragments are ignored and the same call
// is returned.
func (d *Detector) Feed(frag string) (*ToolCall, bool) {
	if d.match != nil {
		return d.match, true
	}
	d.buf.WriteString(frag)
	text := d.buf.String()

	d.scanOpens(text)

	best := -1
	var bestClose int
	for i := range d.opens {
		o := &d.opens[i]
		closing := "</" + o.name + ">"
		if idx := strings.Index(text[o.from:], closing); idx >= 0 {
			if best < 0 || o.start < d.opens[best].start {
				best = i
				bestClose = o.from + idx
			}
			continue
		}
		if next := len(text) - len(closing) + 1; next > o.from {
			o.from = next
		}
	}
	if best < 0 {
		return nil, false
	}

	o := d.opens[best]
	d.match = &ToolCall{Name: o.name, Params: parseParams(text[o.end:bestClose])}
	return d.match, true
}

// Text returns everything fed so far.
func (d *Detector) Text() string {
	return d.buf.String()
}

// scanOpens records recognized opening tags from d.scanned onward.
func (d *Detector) scanOpens(text string) {
	i := d.scanned
	for {
		lt := strings.IndexByte(text[i:], '<')
		if lt < 0 {
			d.scanned = len(text)
			return
		}
		i += lt
		name, end, complete := readTagName(text, i)
		if !complete {
			d.scanned = i
			return
		}
		if end > 0 && d.names[name] {
			d.opens = append(d.opens, openTag{name: name, start: i, end: end, from: end})
		}
		i++
	}
}

// readTagName reads an opening tag <name> at text[i]. It returns the
// name and the index past '>', or end 0 when text[i:] is not an opening
// tag. complete is false when more input could still make it one.
func readTagName(text string, i int) (name string, end int, complete bool) {
	j := i + 1
	for j < len(text) && isNameByte(text[j]) {
		j++
	}
	if j == len(text) {
		return "", 0, false
	}
	if j == i+1 || text[j] != '>' {
		return "", 0, true
	}
	return text[i+1 : j], j + 1, true
}

func isNameByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// parseParams extracts <name>value</name> pairs from the body of a
// call. The first closing tag for a name ends its value, values are
// trimmed, and text between tags is ignored.
func parseParams(body string) []Param {
	var params []Param
	i := 0
	for {
		lt := strings.IndexByte(body[i:], '<')
		if lt < 0 {
			return params
		}
		i += lt
		name, end, complete := readTagName(body, i)
		if !complete || end == 0 {
			i++
			continue
		}
		closing := "</" + name + ">"
		idx := strings.Index(body[end:], closing)
		if idx < 0 {
			i++
			continue
		}
		params = append(params, Param{Name: name, Value: strings.TrimSpace(body[end : end+idx])})
		i = end + idx + len(closing)
	}
}
