// Package source provides minimal concrete sources: each one drains its
// input into a graph's head step, one event per item, and forwards the
// termination sentinel once the input is exhausted. They expose a Run
// method, not an Emit method.
package source

import (
	"bufio"
	"context"
	"io"

	"github.com/flowkit/flowgraph"
)

// FileSource reads a text file line by line, emitting each line's text
// as an event body through head, then forwarding the termination
// sentinel once the file is exhausted.
type FileSource struct {
	head flowgraph.Step
}

// NewFileSource builds a FileSource feeding into head (typically a
// graph's entry step built by flowgraph.BuildFlow).
func NewFileSource(head flowgraph.Step) *FileSource {
	return &FileSource{head: head}
}

// Run reads r line by line, emitting each line and then the termination
// sentinel once r is exhausted. Blocks until done or ctx is cancelled.
func (s *FileSource) Run(ctx context.Context, r io.Reader) (any, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if _, err := s.head.Do(ctx, flowgraph.NewEvent(scanner.Text())); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return s.head.Do(ctx, nil)
}

// ChannelSource drains a channel of event bodies into head, forwarding
// the termination sentinel when the channel is closed.
type ChannelSource struct {
	head flowgraph.Step
}

// NewChannelSource builds a ChannelSource feeding into head.
func NewChannelSource(head flowgraph.Step) *ChannelSource {
	return &ChannelSource{head: head}
}

// Run drains bodies until the channel closes or ctx is cancelled, then
// forwards the termination sentinel.
func (s *ChannelSource) Run(ctx context.Context, bodies <-chan any) (any, error) {
	for {
		select {
		case body, ok := <-bodies:
			if !ok {
				return s.head.Do(ctx, nil)
			}
			if _, err := s.head.Do(ctx, flowgraph.NewEvent(body)); err != nil {
				return nil, err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
