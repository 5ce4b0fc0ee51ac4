package polly

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	pollysdk "github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/smithy-go"
)

type fakePollyClient struct {
	out *pollysdk.SynthesizeSpeechOutput
	err error
}

func (f fakePollyClient) SynthesizeSpeech(ctx context.Context, params *pollysdk.SynthesizeSpeechInput, optFns ...func(*pollysdk.Options)) (*pollysdk.SynthesizeSpeechOutput, error) {
	return f.out, f.err
}

type fakeAPIError struct {
	code string
	msg  string
}

func (e fakeAPIError) Error() string { return e.code + ": " + e.msg }

func (e fakeAPIError) ErrorCode() string { return e.code }

func (e fakeAPIError) ErrorMessage() string { return e.msg }

func (e fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultServer }

var _ smithy.APIError = fakeAPIError{}

func TestSynthesizeSuccess(t *testing.T) {
	t.Parallel()

	adapter := NewAdapterWithClient(Config{}, fakePollyClient{
		out: &pollysdk.SynthesizeSpeechOutput{
			AudioStream: io.NopCloser(bytes.NewReader([]byte("mp3"))),
		},
	})

	audio, err := adapter.Synthesize(context.Background(), "the mitochondria is the powerhouse")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "mp3" {
		t.Fatalf("audio = %q", audio)
	}
}

func TestSynthesizeRequiresText(t *testing.T) {
	t.Parallel()

	adapter := NewAdapterWithClient(Config{}, fakePollyClient{})
	if _, err := adapter.Synthesize(context.Background(), "   "); err == nil {
		t.Fatal("blank text accepted")
	}
}

func TestSynthesizeErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "overload", err: fakeAPIError{code: "TooManyRequestsException", msg: "slow down"}, want: "overloaded"},
		{name: "client error", err: fakeAPIError{code: "TextLengthExceededException", msg: "too long"}, want: "rejected"},
		{name: "server error", err: fakeAPIError{code: "ServiceFailureException", msg: "boom"}, want: "server error"},
		{name: "transport", err: errors.New("connection reset"), want: "transport error"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			adapter := NewAdapterWithClient(Config{}, fakePollyClient{err: tc.err})
			_, err := adapter.Synthesize(context.Background(), "hello")
			if err == nil {
				t.Fatal("error not propagated")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want substring %q", err, tc.want)
			}
		})
	}
}

func TestSynthesizeEmptyStream(t *testing.T) {
	t.Parallel()

	adapter := NewAdapterWithClient(Config{}, fakePollyClient{out: &pollysdk.SynthesizeSpeechOutput{}})
	if _, err := adapter.Synthesize(context.Background(), "hello"); err == nil {
		t.Fatal("empty stream accepted")
	}
}
