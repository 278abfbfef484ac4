package providers

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/sonus/internal/observe"
	"github.com/MrWong99/sonus/internal/resilience"
	"github.com/MrWong99/sonus/pkg/provider/chat"
	chatmock "github.com/MrWong99/sonus/pkg/provider/chat/mock"
	"github.com/MrWong99/sonus/pkg/provider/stt"
	sttmock "github.com/MrWong99/sonus/pkg/provider/stt/mock"
	"github.com/MrWong99/sonus/pkg/provider/tts"
	ttsmock "github.com/MrWong99/sonus/pkg/provider/tts/mock"
)

var errTest = errors.New("test error")

var testFormat = stt.Format{SampleRate: 16000, Channels: 1}

func testRegistry() *Registry {
	return New(resilience.NewRegistry(resilience.Config{}))
}

func TestTranscribe_UsesActiveProvider(t *testing.T) {
	reg := testRegistry()
	a := &sttmock.Transcriber{Result: "hello"}
	b := &sttmock.Transcriber{Result: "unused"}
	reg.RegisterSTT("stt/a", a)
	reg.RegisterSTT("stt/b", b)

	text, err := reg.Transcribe(context.Background(), []byte{1, 2}, testFormat)
	if err != nil {
		t.Fatalf("Transcribe() error = %v, want nil", err)
	}
	if text != "hello" {
		t.Errorf("Transcribe() = %q, want %q", text, "hello")
	}
	if b.CallCount != 0 {
		t.Errorf("second provider CallCount = %d, want 0", b.CallCount)
	}
	if got := reg.ActiveSTT(); got != "stt/a" {
		t.Errorf("ActiveSTT() = %q, want %q", got, "stt/a")
	}
}

func TestTranscribe_FallbackIsSticky(t *testing.T) {
	reg := testRegistry()
	a := &sttmock.Transcriber{Err: errTest}
	b := &sttmock.Transcriber{Result: "fallback"}
	reg.RegisterSTT("stt/a", a)
	reg.RegisterSTT("stt/b", b)

	text, err := reg.Transcribe(context.Background(), nil, testFormat)
	if err != nil {
		t.Fatalf("Transcribe() error = %v, want nil", err)
	}
	if text != "fallback" {
		t.Errorf("Transcribe() = %q, want %q", text, "fallback")
	}
	if got := reg.ActiveSTT(); got != "stt/b" {
		t.Errorf("ActiveSTT() = %q, want %q", got, "stt/b")
	}

	// The switch sticks: the next call goes straight to the fallback without
	// retrying the failed provider.
	if _, err := reg.Transcribe(context.Background(), nil, testFormat); err != nil {
		t.Fatalf("second Transcribe() error = %v, want nil", err)
	}
	if a.CallCount != 1 {
		t.Errorf("failed provider CallCount = %d, want 1", a.CallCount)
	}
	if b.CallCount != 2 {
		t.Errorf("fallback provider CallCount = %d, want 2", b.CallCount)
	}
}

func TestTranscribe_SkipsOpenCircuit(t *testing.T) {
	reg := New(resilience.NewRegistry(resilience.Config{FailureThreshold: 1}))
	a := &sttmock.Transcriber{Err: errTest}
	b := &sttmock.Transcriber{Result: "ok"}
	reg.RegisterSTT("stt/a", a)
	reg.RegisterSTT("stt/b", b)

	// First call fails over to b and opens a's circuit.
	if _, err := reg.Transcribe(context.Background(), nil, testFormat); err != nil {
		t.Fatalf("Transcribe() error = %v, want nil", err)
	}

	// Force the rotation back onto a. Its open circuit must reject the call
	// before the transcriber runs.
	if err := reg.SwitchSTT(); err != nil {
		t.Fatalf("SwitchSTT() error = %v, want nil", err)
	}
	text, err := reg.Transcribe(context.Background(), nil, testFormat)
	if err != nil {
		t.Fatalf("Transcribe() error = %v, want nil", err)
	}
	if text != "ok" {
		t.Errorf("Transcribe() = %q, want %q", text, "ok")
	}
	if a.CallCount != 1 {
		t.Errorf("open-circuit provider CallCount = %d, want 1", a.CallCount)
	}
}

func TestTranscribe_NoProviders(t *testing.T) {
	reg := testRegistry()
	if _, err := reg.Transcribe(context.Background(), nil, testFormat); !errors.Is(err, ErrNoProviders) {
		t.Errorf("Transcribe() error = %v, want ErrNoProviders", err)
	}
}

func TestTranscribe_AllProvidersFail(t *testing.T) {
	reg := testRegistry()
	reg.RegisterSTT("stt/a", &sttmock.Transcriber{Err: errTest})
	reg.RegisterSTT("stt/b", &sttmock.Transcriber{Err: errTest})

	if _, err := reg.Transcribe(context.Background(), nil, testFormat); !errors.Is(err, ErrNoProviders) {
		t.Errorf("Transcribe() error = %v, want ErrNoProviders", err)
	}
}

func TestSynthesize_FallbackIsSticky(t *testing.T) {
	reg := testRegistry()
	a := &ttsmock.Synthesizer{Err: errTest}
	b := &ttsmock.Synthesizer{Result: tts.Clip{Data: []byte("mp3"), Encoding: tts.EncodingMP3}}
	reg.RegisterTTS("tts/a", a)
	reg.RegisterTTS("tts/b", b)

	clip, err := reg.Synthesize(context.Background(), "hi there")
	if err != nil {
		t.Fatalf("Synthesize() error = %v, want nil", err)
	}
	if clip.Encoding != tts.EncodingMP3 {
		t.Errorf("clip.Encoding = %q, want %q", clip.Encoding, tts.EncodingMP3)
	}
	if got := reg.ActiveTTS(); got != "tts/b" {
		t.Errorf("ActiveTTS() = %q, want %q", got, "tts/b")
	}
	if len(b.RecordedTexts) != 1 || b.RecordedTexts[0] != "hi there" {
		t.Errorf("RecordedTexts = %v, want [hi there]", b.RecordedTexts)
	}
}

func TestRespond(t *testing.T) {
	reg := testRegistry()
	backend := &chatmock.Responder{Result: "sure thing"}
	reg.SetChat(backend)

	history := []chat.Message{
		{Role: chat.RoleSystem, Content: "be brief"},
		{Role: chat.RoleUser, Content: "hello"},
	}
	reply, err := reg.Respond(context.Background(), history)
	if err != nil {
		t.Fatalf("Respond() error = %v, want nil", err)
	}
	if reply != "sure thing" {
		t.Errorf("Respond() = %q, want %q", reply, "sure thing")
	}
	if backend.CallCount != 1 {
		t.Errorf("CallCount = %d, want 1", backend.CallCount)
	}
}

func TestRespond_NoBackend(t *testing.T) {
	reg := testRegistry()
	if _, err := reg.Respond(context.Background(), nil); !errors.Is(err, ErrNoProviders) {
		t.Errorf("Respond() error = %v, want ErrNoProviders", err)
	}
}

func TestRespond_BreakerOpensOnRepeatedFailure(t *testing.T) {
	breakers := resilience.NewRegistry(resilience.Config{FailureThreshold: 2})
	reg := New(breakers)
	reg.SetChat(&chatmock.Responder{Err: errTest})

	for i := 0; i < 2; i++ {
		if _, err := reg.Respond(context.Background(), nil); !errors.Is(err, errTest) {
			t.Fatalf("Respond() #%d error = %v, want errTest", i+1, err)
		}
	}
	if got := breakers.Get("chat").State(); got != resilience.StateOpen {
		t.Fatalf("chat breaker state = %v, want open", got)
	}
	if _, err := reg.Respond(context.Background(), nil); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("Respond() with open circuit error = %v, want ErrCircuitOpen", err)
	}
}

func TestSwitchSTT(t *testing.T) {
	reg := testRegistry()
	reg.RegisterSTT("stt/a", &sttmock.Transcriber{})

	if err := reg.SwitchSTT(); !errors.Is(err, ErrNoProviders) {
		t.Errorf("SwitchSTT() with one provider error = %v, want ErrNoProviders", err)
	}

	reg.RegisterSTT("stt/b", &sttmock.Transcriber{})
	if err := reg.SwitchSTT(); err != nil {
		t.Fatalf("SwitchSTT() error = %v, want nil", err)
	}
	if got := reg.ActiveSTT(); got != "stt/b" {
		t.Errorf("ActiveSTT() = %q, want %q", got, "stt/b")
	}
	if err := reg.SwitchSTT(); err != nil {
		t.Fatalf("SwitchSTT() error = %v, want nil", err)
	}
	if got := reg.ActiveSTT(); got != "stt/a" {
		t.Errorf("ActiveSTT() after wrap = %q, want %q", got, "stt/a")
	}
}

func TestSwitchTTS(t *testing.T) {
	reg := testRegistry()
	reg.RegisterTTS("tts/a", &ttsmock.Synthesizer{})
	reg.RegisterTTS("tts/b", &ttsmock.Synthesizer{})

	if err := reg.SwitchTTS(); err != nil {
		t.Fatalf("SwitchTTS() error = %v, want nil", err)
	}
	if got := reg.ActiveTTS(); got != "tts/b" {
		t.Errorf("ActiveTTS() = %q, want %q", got, "tts/b")
	}
}

func TestAllOpen(t *testing.T) {
	breakers := resilience.NewRegistry(resilience.Config{FailureThreshold: 1})
	reg := New(breakers)

	if !reg.AllOpen("stt") {
		t.Error("AllOpen(stt) with no providers = false, want true")
	}

	reg.RegisterSTT("stt/a", &sttmock.Transcriber{Err: errTest})
	if reg.AllOpen("stt") {
		t.Error("AllOpen(stt) with closed circuit = true, want false")
	}

	// One failed call opens the sole breaker.
	if _, err := reg.Transcribe(context.Background(), nil, testFormat); !errors.Is(err, ErrNoProviders) {
		t.Fatalf("Transcribe() error = %v, want ErrNoProviders", err)
	}
	if !reg.AllOpen("stt") {
		t.Error("AllOpen(stt) with open circuit = false, want true")
	}

	if reg.AllOpen("chat") {
		t.Error("AllOpen(chat) = true, want false for unknown kind")
	}
}

func TestTranscribe_RecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	reg := New(resilience.NewRegistry(resilience.Config{}), WithMetrics(m))
	reg.RegisterSTT("stt/a", &sttmock.Transcriber{Result: "hello"})

	if _, err := reg.Transcribe(context.Background(), []byte{1, 2}, testFormat); err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	names := make(map[string]bool)
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			names[metric.Name] = true
		}
	}
	if !names["sonus.provider.requests"] {
		t.Error("request counter not recorded")
	}
	if !names["sonus.stt.duration"] {
		t.Error("stt latency histogram not recorded")
	}
}
