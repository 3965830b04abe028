package mcp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// RunStdio serves newline-delimited MCP messages from in, writing one response line to out
// per message. A line longer than MaxMessageSize is skipped and answered with an error.
// It returns when in is exhausted or ctx is cancelled.
func (d *Dispatcher) RunStdio(ctx context.Context, in io.Reader, out io.Writer) (err error) {
	err = d.serveLines(ctx, in, out, MaxMessageSize)
	return err
}

func (d *Dispatcher) serveLines(ctx context.Context, in io.Reader, out io.Writer, limit int) (err error) {
	reader := bufio.NewReaderSize(in, 64*1024)
	writer := bufio.NewWriter(out)

	d.logger.InfoContext(ctx, "MCP server started", slog.String("transport", "stdio"))

	for {
		if ctx.Err() != nil {
			return err
		}

		line, tooLong, readErr := readLine(reader, limit)

		var response []byte

		switch {
		case tooLong:
			response = d.handleOversized(ctx)

		case len(bytes.TrimSpace(line)) > 0:
			response = d.HandleMessage(ctx, bytes.TrimSpace(line))
		}

		if response != nil {
			_, err = writer.Write(append(response, '\n'))
			if err == nil {
				err = writer.Flush()
			}

			if err != nil {
				err = fmt.Errorf("writing response: %w", err)
				return err
			}
		}

		if errors.Is(readErr, io.EOF) {
			return err
		}

		if readErr != nil {
			err = fmt.Errorf("reading stdin: %w", readErr)
			return err
		}
	}
}

// readLine reads up to the next newline. Once a line grows past limit the rest of it is
// discarded and tooLong is set; the reader is left at the start of the following line.
func readLine(reader *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		chunk, readErr := reader.ReadSlice('\n')

		if !tooLong {
			line = append(line, chunk...)

			if len(bytes.TrimRight(line, "\r\n")) > limit {
				tooLong = true
				line = nil
			}
		}

		if errors.Is(readErr, bufio.ErrBufferFull) {
			continue
		}

		err = readErr
		return line, tooLong, err
	}
}
