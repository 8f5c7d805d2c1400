package host

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/chazu/quill/vm"
)

// Console answers the suspensions made by the standard natives over a
// pair of streams:
//
//   - a yielded number is a pause in milliseconds; the thread resumes with
//     null once it elapses.
//   - a yielded string is an input prompt written to Out; the thread
//     resumes with the next line read from In, or null at end of input.
//   - null reads a line without a prompt.
//
// Anything else is an error.
type Console struct {
	In  io.Reader
	Out io.Writer

	scanner *bufio.Scanner
}

// NewConsole creates a Console over in and out.
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{In: in, Out: out}
}

func (c *Console) Resume(ctx context.Context, t *vm.Thread, yielded vm.Primitive) (vm.Primitive, error) {
	switch {
	case yielded.IsNumber():
		return vm.Null, sleep(ctx, time.Duration(yielded.Num()*float64(time.Millisecond)))

	case yielded.IsString():
		if _, err := fmt.Fprint(c.Out, yielded.Str()); err != nil {
			return vm.Null, err
		}
		return c.readLine(ctx)

	case yielded.IsNull():
		return c.readLine(ctx)
	}
	return vm.Null, fmt.Errorf("console cannot answer a yielded %s", yielded.TypeName())
}

func (c *Console) readLine(ctx context.Context) (vm.Primitive, error) {
	if err := ctx.Err(); err != nil {
		return vm.Null, err
	}
	if c.scanner == nil {
		c.scanner = bufio.NewScanner(c.In)
	}
	if c.scanner.Scan() {
		return vm.String(c.scanner.Text()), nil
	}
	if err := c.scanner.Err(); err != nil {
		return vm.Null, err
	}
	return vm.Null, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
