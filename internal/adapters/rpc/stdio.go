package rpc

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
)

// ServeStdio reads newline-delimited JSON-RPC messages from in and writes one response
// line per request to out, one message at a time. Content-Length framed input is accepted
// too. It returns nil when in reaches EOF or ctx is done.
func ServeStdio(ctx context.Context, p *Protocol, in io.Reader, out io.Writer) error {
	type readResult struct {
		msg []byte
		err error
	}
	messages := make(chan readResult)
	go func() {
		reader := bufio.NewReader(in)
		for {
			msg, err := readStdioMessage(reader, int(maxRPCBodyBytes))
			select {
			case messages <- readResult{msg: msg, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	writer := bufio.NewWriter(out)
	for {
		select {
		case <-ctx.Done():
			return nil
		case next := <-messages:
			if errors.Is(next.err, io.EOF) {
				return nil
			}
			if next.err != nil {
				return next.err
			}
			resp, ok := p.Handle(ctx, next.msg)
			if !ok {
				continue
			}
			if _, err := writer.Write(append(resp, '\n')); err != nil {
				return err
			}
			if err := writer.Flush(); err != nil {
				return err
			}
		}
	}
}

func readStdioMessage(reader *bufio.Reader, maxBodySize int) ([]byte, error) {
	for {
		lineBytes, err := reader.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				trimmed := bytes.TrimSpace(lineBytes)
				if len(trimmed) == 0 {
					return nil, io.EOF
				}
				return trimmed, nil
			}
			return nil, err
		}

		line := strings.TrimSpace(string(lineBytes))
		if line == "" {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(line), "content-length:") {
			return []byte(line), nil
		}

		length, convErr := strconv.Atoi(strings.TrimSpace(line[len("content-length:"):]))
		if convErr != nil || length < 0 || length > maxBodySize {
			return []byte(line), nil
		}
		for {
			header, headerErr := reader.ReadBytes('\n')
			if headerErr != nil {
				return nil, headerErr
			}
			if len(bytes.TrimSpace(header)) == 0 {
				break
			}
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(reader, payload); err != nil {
			return nil, err
		}
		return bytes.TrimSpace(payload), nil
	}
}
