package remoteapi

import (
	"errors"
	"io"
)

var errNotSeekable = errors.New("remoteapi: underlying reader is not seekable")

// progressGranularity is the byte interval at which ProgressFunc is
// invoked, avoiding per-read-call observer overhead (§4.7).
const progressGranularity = 1 << 20 // 1 MiB

// ProgressFunc is invoked as bytes move across the wire. transferred is
// cumulative; total is the full transfer size (0 if unknown).
type ProgressFunc func(transferred, total int64)

// progressReader wraps an io.Reader, invoking report every time at least
// progressGranularity bytes have passed since the last call.
type progressReader struct {
	r              io.Reader
	total          int64
	transferred    int64
	sinceLastEvent int64
	report         ProgressFunc
}

func newProgressReader(r io.Reader, total int64, report ProgressFunc) io.Reader {
	if report == nil {
		return r
	}

	return &progressReader{r: r, total: total, report: report}
}

// Seek forwards to the underlying reader when it is seekable, so
// rewindBody can still rewind a progress-wrapped upload body on retry.
// transferred/sinceLastEvent reset to 0 on a seek to offset 0 (the only
// rewind rewindBody ever performs).
func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	seeker, ok := p.r.(io.Seeker)
	if !ok {
		return 0, errNotSeekable
	}

	n, err := seeker.Seek(offset, whence)
	if err == nil && offset == 0 && whence == io.SeekStart {
		p.transferred = 0
		p.sinceLastEvent = 0
	}

	return n, err
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.transferred += int64(n)
		p.sinceLastEvent += int64(n)

		if p.sinceLastEvent >= progressGranularity {
			p.report(p.transferred, p.total)
			p.sinceLastEvent = 0
		}
	}

	if err == io.EOF && p.sinceLastEvent > 0 {
		p.report(p.transferred, p.total)
	}

	return n, err
}
