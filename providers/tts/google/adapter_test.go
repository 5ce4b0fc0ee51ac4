package google

import (
	"context"
	"errors"
	"testing"

	"github.com/googleapis/gax-go/v2"
	texttospeechpb "google.golang.org/genproto/googleapis/cloud/texttospeech/v1"
)

type fakeTTSClient struct {
	resp *texttospeechpb.SynthesizeSpeechResponse
	err  error

	gotLanguage string
}

func (f *fakeTTSClient) SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error) {
	if req.Voice != nil {
		f.gotLanguage = req.Voice.LanguageCode
	}
	return f.resp, f.err
}

func TestSynthesizeSuccess(t *testing.T) {
	t.Parallel()

	client := &fakeTTSClient{resp: &texttospeechpb.SynthesizeSpeechResponse{AudioContent: []byte("mp3")}}
	adapter := NewAdapterWithClient(Config{}, client)

	audio, err := adapter.Synthesize(context.Background(), "osmosis moves water across membranes")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "mp3" {
		t.Fatalf("audio = %q", audio)
	}
	if client.gotLanguage != "en-US" {
		t.Fatalf("language = %q", client.gotLanguage)
	}
}

func TestSynthesizeError(t *testing.T) {
	t.Parallel()

	adapter := NewAdapterWithClient(Config{}, &fakeTTSClient{err: errors.New("quota exhausted")})
	if _, err := adapter.Synthesize(context.Background(), "hello"); err == nil {
		t.Fatal("error not propagated")
	}
}

func TestSynthesizeEmptyContent(t *testing.T) {
	t.Parallel()

	adapter := NewAdapterWithClient(Config{}, &fakeTTSClient{resp: &texttospeechpb.SynthesizeSpeechResponse{}})
	if _, err := adapter.Synthesize(context.Background(), "hello"); err == nil {
		t.Fatal("empty audio accepted")
	}
}

func TestSynthesizeRequiresText(t *testing.T) {
	t.Parallel()

	adapter := NewAdapterWithClient(Config{}, &fakeTTSClient{})
	if _, err := adapter.Synthesize(context.Background(), ""); err == nil {
		t.Fatal("blank text accepted")
	}
}
