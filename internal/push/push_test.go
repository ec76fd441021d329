package push

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"lumina-bridge/internal/commands/application"
	commands "lumina-bridge/internal/commands/domain"
	"lumina-bridge/internal/wled"
)

type published struct {
	topic   string
	payload string
}

type fakeTransport struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	handlers   map[string]func([]byte)
	published  []published
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: map[string]func([]byte){}}
}

func (f *fakeTransport) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeTransport) Subscribe(topic string, handler func([]byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeTransport) Publish(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{topic: topic, payload: string(payload)})
	return nil
}

func (f *fakeTransport) deliver(topic string, payload string) {
	f.mu.Lock()
	handler := f.handlers[topic]
	f.mu.Unlock()
	handler([]byte(payload))
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

var testTopics = SlashTopics("lumina", "dev-1")

func newTestSource(t *testing.T, transport *fakeTransport, size int) *Source {
	t.Helper()
	source, err := NewSource(NewMailbox(size, quietLogger()), "192.168.1.50", transport, testTopics.Status, quietLogger())
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	return source
}

func TestTopics(t *testing.T) {
	if testTopics.Command != "lumina/dev-1/command" || testTopics.Status != "lumina/dev-1/status" {
		t.Fatalf("unexpected slash topics %+v", testTopics)
	}
	dot := DotTopics("", "dev-1")
	if dot.Command != "lumina.dev-1.command" || dot.Status != "lumina.dev-1.status" {
		t.Fatalf("unexpected dot topics %+v", dot)
	}
}

func TestLinkConnectSubscribesAndAnnounces(t *testing.T) {
	transport := newFakeTransport()
	source := newTestSource(t, transport, 4)
	link, err := NewLink(transport, testTopics, "edge-1", source, quietLogger())
	if err != nil {
		t.Fatalf("new link: %v", err)
	}
	if err := link.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !link.Connected() {
		t.Fatalf("expected connected")
	}
	if len(transport.published) != 1 {
		t.Fatalf("expected online publish, got %d", len(transport.published))
	}
	online := transport.published[0]
	if online.topic != testTopics.Status || online.payload != `{"online":true,"bridge":"edge-1"}` {
		t.Fatalf("unexpected online message %+v", online)
	}

	transport.deliver(testTopics.Command, `{"action":"getState"}`)
	cmds, _ := source.Pending(context.Background(), 5)
	if len(cmds) != 1 || cmds[0].Intent != commands.IntentGetState {
		t.Fatalf("expected delivered getState command, got %+v", cmds)
	}
}

func TestLinkConnectError(t *testing.T) {
	transport := newFakeTransport()
	transport.connectErr = errors.New("broker down")
	link, _ := NewLink(transport, testTopics, "edge-1", newTestSource(t, transport, 4), quietLogger())
	if err := link.Connect(context.Background()); err == nil {
		t.Fatalf("expected connect error")
	}
	if len(transport.published) != 0 {
		t.Fatalf("nothing may be published without a session")
	}
}

func TestDeliverBuildsCommand(t *testing.T) {
	transport := newFakeTransport()
	source := newTestSource(t, transport, 4)

	source.Deliver([]byte(`{"payload":{"on":true,"bri":200}}`))
	source.Deliver([]byte(`{"action":"getInfo","payload":null}`))

	cmds, err := source.Pending(context.Background(), 5)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(cmds) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(cmds))
	}
	first := cmds[0]
	if first.Intent != commands.IntentSetState {
		t.Fatalf("expected default intent setState, got %s", first.Intent)
	}
	if first.Target != "192.168.1.50" || first.Status != commands.StatusPending {
		t.Fatalf("unexpected command %+v", first)
	}
	if got := first.Payload.String(); got != `{"on":true,"bri":200}` || len(first.Skipped) != 0 {
		t.Fatalf("unexpected payload %s skipped=%v", got, first.Skipped)
	}
	if !cmds[1].Payload.IsNull() {
		t.Fatalf("null payload must read as null, got %s", cmds[1].Payload.String())
	}
	if len(first.ID) != 26 || first.ID >= cmds[1].ID {
		t.Fatalf("expected increasing ulids, got %s then %s", first.ID, cmds[1].ID)
	}
}

func TestDeliverMalformedPublishesParseError(t *testing.T) {
	transport := newFakeTransport()
	source := newTestSource(t, transport, 4)

	source.Deliver([]byte(`{"action":`))
	source.replies.Wait()

	if source.mailbox.Len() != 0 {
		t.Fatalf("malformed message must not be queued")
	}
	if len(transport.published) != 1 || transport.published[0].payload != `{"error":"JSON parse error"}` {
		t.Fatalf("expected parse error publish, got %+v", transport.published)
	}
}

type blockingPublisher struct {
	release chan struct{}
	sent    chan string
}

func (p *blockingPublisher) Publish(_ context.Context, _ string, payload []byte) error {
	<-p.release
	p.sent <- string(payload)
	return nil
}

func TestDeliverMalformedDoesNotWaitForPublish(t *testing.T) {
	pub := &blockingPublisher{release: make(chan struct{}), sent: make(chan string, 1)}
	source, err := NewSource(NewMailbox(4, quietLogger()), "192.168.1.50", pub, testTopics.Status, quietLogger())
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	returned := make(chan struct{})
	go func() {
		source.Deliver([]byte(`not json`))
		source.Deliver([]byte(`{"action":"getState"}`))
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatalf("expected deliver to return while the reply publish is blocked")
	}
	if source.mailbox.Len() != 1 {
		t.Fatalf("expected following command queued, got %d", source.mailbox.Len())
	}

	close(pub.release)
	select {
	case got := <-pub.sent:
		if got != `{"error":"JSON parse error"}` {
			t.Fatalf("unexpected reply %s", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected parse error reply after release")
	}
	source.replies.Wait()
}

func TestMailboxOverflowDrops(t *testing.T) {
	transport := newFakeTransport()
	source := newTestSource(t, transport, 2)
	for i := 0; i < 5; i++ {
		source.Deliver([]byte(`{"action":"getState"}`))
	}
	if source.mailbox.Len() != 2 {
		t.Fatalf("expected mailbox capped at 2, got %d", source.mailbox.Len())
	}
	first, _ := source.Pending(context.Background(), 1)
	rest, _ := source.Pending(context.Background(), 5)
	if len(first) != 1 || len(rest) != 1 {
		t.Fatalf("expected drain in two batches, got %d and %d", len(first), len(rest))
	}
	if first[0].ID >= rest[0].ID {
		t.Fatalf("expected fifo order")
	}
}

func TestReporterBodies(t *testing.T) {
	transport := newFakeTransport()
	reporter, err := NewReporter(transport, testTopics.Status)
	if err != nil {
		t.Fatalf("new reporter: %v", err)
	}
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	ok := commands.Command{ID: "a", Intent: commands.IntentSetState, Status: commands.StatusPending}
	_ = ok.Begin()
	_ = ok.Complete(commands.NewResult([]byte(`{"success":true}`)), now)

	bad := commands.Command{ID: "b", Intent: commands.IntentApplyConfig, Status: commands.StatusPending}
	_ = bad.Begin()
	_ = bad.Fail(commands.FailureDevice, "HTTP 500", now)

	if err := reporter.MarkExecuting(context.Background(), ok); err != nil {
		t.Fatalf("mark executing: %v", err)
	}
	for _, cmd := range []commands.Command{ok, bad} {
		if err := reporter.Report(context.Background(), cmd); err != nil {
			t.Fatalf("report: %v", err)
		}
	}
	if len(transport.published) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(transport.published))
	}
	if transport.published[0].payload != `{"success":true}` {
		t.Fatalf("expected raw device response, got %s", transport.published[0].payload)
	}
	if transport.published[1].payload != `{"error":"HTTP 500","action":"applyConfig"}` {
		t.Fatalf("unexpected failure body %s", transport.published[1].payload)
	}
}

type stateDevice struct {
	reqs []wled.Request
	body string
	err  error
}

func (d *stateDevice) Do(_ context.Context, _ string, req wled.Request) ([]byte, error) {
	d.reqs = append(d.reqs, req)
	if d.err != nil {
		return nil, d.err
	}
	return []byte(d.body), nil
}

func TestStatePublisherEnrichesDeviceState(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	device := &stateDevice{body: `{"on":true,"bri":10}`}
	transport := newFakeTransport()
	pub, err := NewStatePublisher(device, transport, application.NewBridgeState(start), "192.168.1.50", testTopics.Status, "edge-1")
	if err != nil {
		t.Fatalf("new state publisher: %v", err)
	}
	pub.now = func() time.Time { return start.Add(90 * time.Second) }

	if err := pub.Publish(context.Background()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if device.reqs[0].Method != "GET" || device.reqs[0].Path != wled.PathState {
		t.Fatalf("expected GET state, got %+v", device.reqs[0])
	}
	want := `{"on":true,"bri":10,"_bridge":"edge-1","_uptime":90,"_commands":0,"_errors":0}`
	if transport.published[0].payload != want {
		t.Fatalf("expected %s, got %s", want, transport.published[0].payload)
	}
}

func TestStatePublisherSkipsOnDeviceError(t *testing.T) {
	device := &stateDevice{err: errors.New("timeout")}
	transport := newFakeTransport()
	pub, _ := NewStatePublisher(device, transport, nil, "192.168.1.50", testTopics.Status, "edge-1")
	if err := pub.Publish(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if len(transport.published) != 0 {
		t.Fatalf("nothing may be published on device error")
	}
	task := pub.Task(30 * time.Second)
	if task.Name == "" || task.Interval != 30*time.Second || task.Run == nil {
		t.Fatalf("unexpected task %+v", task)
	}
}
