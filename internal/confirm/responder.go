package confirm

import (
	"bufio"
	"fmt"
	"io"
)

// StdioResponder prints the report and prompt to out and reads one literal
// line from in. It is the CLI's human-response channel; tests inject scripted
// responders instead.
type StdioResponder struct {
	in     *bufio.Scanner
	out    io.Writer
	render func(markdown string) string // optional, e.g. glamour
}

func NewStdioResponder(in io.Reader, out io.Writer) *StdioResponder {
	return &StdioResponder{in: bufio.NewScanner(in), out: out}
}

// SetRenderer installs a markdown renderer applied to the report before
// printing. Nil leaves the raw markdown.
func (r *StdioResponder) SetRenderer(render func(string) string) {
	r.render = render
}

func (r *StdioResponder) Respond(req Request) (Response, error) {
	report := req.Report
	if r.render != nil {
		report = r.render(report)
	}
	fmt.Fprintln(r.out, report)
	fmt.Fprint(r.out, req.Prompt)

	if !r.in.Scan() {
		if err := r.in.Err(); err != nil {
			return Response{}, err
		}
		return Response{}, io.EOF
	}
	return Response{Answer: r.in.Text()}, nil
}
