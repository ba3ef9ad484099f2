package kernel

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/deskflow/kernel/internal/kerrors"
	"github.com/deskflow/kernel/internal/logging"
	"github.com/deskflow/kernel/internal/protocol"
)

const maxLineBytes = 2 << 20 // headroom above the Gateway's 1 MiB payload cap

// RunLoop reads one JSON request line at a time from in, dispatches it, and
// writes the matching Response line to out. It returns when in reaches EOF,
// or when the next line arrives after ctx is canceled: cancellation is
// checked between lines, not while a read is blocked.
func (k *Kernel) RunLoop(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	writer := bufio.NewWriter(out)
	defer writer.Flush()

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := k.handleLine(ctx, line)
		if resp == nil {
			continue
		}

		encoded, err := json.Marshal(resp)
		if err != nil {
			logging.Error("kernel: failed to marshal response: %v", err)
			continue
		}
		if _, err := writer.Write(encoded); err != nil {
			return err
		}
		if err := writer.WriteByte('\n'); err != nil {
			return err
		}
		if err := writer.Flush(); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (k *Kernel) handleLine(ctx context.Context, line []byte) *protocol.Response {
	var req protocol.Request
	if err := json.Unmarshal(line, &req); err != nil {
		return errorResponse("", kerrors.Validation("malformed request line"))
	}
	return k.HandleRequest(ctx, &req, len(line))
}
