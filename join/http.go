// Package join provides concrete ConcurrentJobExecution-based steps that
// augment events with data from an external collaborator: an HTTP
// endpoint, a flowgraph.Table, or a raw V3IO-style driver.
package join

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	"github.com/flowkit/flowgraph"
)

// HttpRequest mirrors the request shape a RequestBuilder produces: method,
// URL, body, and headers.
type HttpRequest struct {
	Method  string
	URL     string
	Body    io.Reader
	Headers map[string]string
}

// HttpResponse is the status/body pair a JoinFromResponse function sees.
type HttpResponse struct {
	Status int
	Body   string
}

// RequestBuilder builds an HttpRequest from an event's body. It always
// receives the body; WithFullEvent has no effect on what it is passed.
type RequestBuilder func(element any) (*HttpRequest, error)

// JoinFromResponse merges body and resp into the event to emit downstream;
// a nil return drops the event.
type JoinFromResponse func(body any, resp *HttpResponse) (any, error)

// SendToHttp builds a ConcurrentJobExecutionStep that issues one HTTP
// request per event and joins the response back into the event.
func SendToHttp(name string, buildRequest RequestBuilder, join JoinFromResponse, maxInFlight int, opts ...flowgraph.StepOption) *flowgraph.ConcurrentJobExecutionStep {
	if buildRequest == nil || join == nil {
		panic(&flowgraph.ConstructionError{Step: name, Message: "SendToHttp requires a non-nil RequestBuilder and JoinFromResponse"})
	}
	proc := &httpProcessor{buildRequest: buildRequest, join: join}
	return flowgraph.NewConcurrentJobExecution(name, proc, maxInFlight, opts...)
}

type httpProcessor struct {
	buildRequest RequestBuilder
	join         JoinFromResponse
	client       *http.Client
}

func (p *httpProcessor) LazyInit(ctx context.Context) error {
	p.client = &http.Client{Timeout: 15 * time.Second}
	return nil
}

func (p *httpProcessor) Cleanup() error {
	p.client.CloseIdleConnections()
	return nil
}

func (p *httpProcessor) ProcessEvent(ctx context.Context, ev *flowgraph.Event) (<-chan flowgraph.JobResult, error) {
	req, err := p.buildRequest(ev.Body)
	if err != nil {
		return nil, err
	}
	ch := make(chan flowgraph.JobResult, 1)
	go func() {
		ch <- p.do(ctx, req)
	}()
	return ch, nil
}

func (p *httpProcessor) do(ctx context.Context, req *HttpRequest) flowgraph.JobResult {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, req.Body)
	if err != nil {
		return flowgraph.JobResult{Err: fmt.Errorf("join: invalid request: %w", err)}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return flowgraph.JobResult{Err: fmt.Errorf("join: request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return flowgraph.JobResult{Err: fmt.Errorf("join: read response: %w", err)}
	}
	return flowgraph.JobResult{Value: &HttpResponse{Status: resp.StatusCode, Body: string(body)}}
}

func (p *httpProcessor) HandleCompleted(ctx context.Context, ev *flowgraph.Event, result any, emit flowgraph.Emit) error {
	resp := result.(*HttpResponse)
	joined, err := p.join(ev.Body, resp)
	if err != nil {
		return err
	}
	if joined == nil {
		return nil
	}
	return emit(ctx, ev.WithBody(joined))
}

// ExtractReadableText is a convenience JoinFromResponse that replaces the
// event body with the page's readable text content, extracted via
// go-readability, falling back to the raw response body when extraction
// finds no article text. pageURL is used only to resolve relative links
// during extraction.
func ExtractReadableText(pageURL string) JoinFromResponse {
	return func(_ any, resp *HttpResponse) (any, error) {
		parsed, _ := url.Parse(pageURL)
		article, err := readability.FromReader(strings.NewReader(resp.Body), parsed)
		if err == nil && strings.TrimSpace(article.TextContent) != "" {
			return strings.TrimSpace(article.TextContent), nil
		}
		return resp.Body, nil
	}
}
