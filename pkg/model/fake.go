package model

import "context"

// FakeClient is a scriptable Client implementation for tests. Each call to
// TextToText pops the next queued Response (or Err) in FIFO order.
type FakeClient struct {
	Responses []*Response
	Errs      []error
	Calls     []Request
}

func (f *FakeClient) TextToText(_ context.Context, req Request) (*Response, error) {
	f.Calls = append(f.Calls, req)
	idx := len(f.Calls) - 1
	if idx < len(f.Errs) && f.Errs[idx] != nil {
		return nil, f.Errs[idx]
	}
	if idx < len(f.Responses) {
		return f.Responses[idx], nil
	}
	return &Response{Choices: []Choice{{Message: Message{Role: RoleAssistant}}}}, nil
}

func (f *FakeClient) TextToTextStreaming(context.Context, Request) (Stream, error) {
	return nil, ErrStreamingUnsupported
}

func (f *FakeClient) TextToImage(context.Context, Request) (*Response, error) {
	return nil, ErrStreamingUnsupported
}

func (f *FakeClient) ImageToText(context.Context, Request) (*Response, error) {
	return nil, ErrStreamingUnsupported
}

func (f *FakeClient) Transcribe(context.Context, []byte, string) (string, error) {
	return "", ErrStreamingUnsupported
}
