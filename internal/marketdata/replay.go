package marketdata

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// maxReplayLine bounds one snapshot line; deep books exceed the bufio
// default of 64KiB.
const maxReplayLine = 4 * 1024 * 1024

// Replay feeds newline-delimited JSON snapshots from a file to handler,
// pausing interval between messages when positive. Blank lines are
// skipped. Replay stops early when the context is canceled.
func Replay(ctx context.Context, path string, interval time.Duration, handler func([]byte)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("marketdata: open replay file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxReplayLine)

	count := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg := make([]byte, len(line))
		copy(msg, line)
		handler(msg)
		count++

		if interval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("marketdata: read replay file: %w", err)
	}

	log.Info().Str("path", path).Int("messages", count).Msg("replay finished")
	return nil
}
