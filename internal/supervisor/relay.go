package supervisor

import (
	"bufio"
	"fmt"
	"io"
)

const maxLineSize = 1 << 20

// relay copies r to w line by line, feeding each line to observers. When a
// line exceeds maxLineSize the rest of the stream is copied raw.
func (p *Process) relay(r io.Reader, w io.Writer, observers []LineObserver) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Text()
		fmt.Fprintln(w, line)
		for _, observe := range observers {
			observe(line)
		}
	}

	if err := scanner.Err(); err != nil {
		p.logger.Debug("line relay fell back to raw copy", "err", err)
		_, _ = io.Copy(w, r)
	}
}
