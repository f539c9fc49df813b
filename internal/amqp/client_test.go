package amqp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"rekord/internal/core"
)

type fakeChannel struct {
	declared   []string
	published  []amqp091.Publishing
	keys       []string
	declareErr error
	publishErr error
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error {
	f.declared = append(f.declared, name+":"+kind)
	return f.declareErr
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.keys = append(f.keys, exchange+"/"+key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestClientDeclaresTopicExchange(t *testing.T) {
	ch := &fakeChannel{}
	if _, err := newClientWithChannel(ch, "rekord", "report.queried"); err != nil {
		t.Fatalf("newClientWithChannel: %v", err)
	}
	if len(ch.declared) != 1 || ch.declared[0] != "rekord:topic" {
		t.Fatalf("declared = %v", ch.declared)
	}
}

func TestClientSetupError(t *testing.T) {
	ch := &fakeChannel{declareErr: errors.New("access refused")}
	if _, err := newClientWithChannel(ch, "rekord", "report.queried"); err == nil {
		t.Fatal("expected setup error")
	}
}

func TestPublishReportQueried(t *testing.T) {
	ch := &fakeChannel{}
	client, err := newClientWithChannel(ch, "rekord", "report.queried")
	if err != nil {
		t.Fatalf("newClientWithChannel: %v", err)
	}

	msg := NewReportQueriedMessage(core.Filter{Years: []int{2024}, OrderCategories: []string{"P"}}, 3, 25*time.Millisecond)
	if err := client.PublishReportQueried(context.Background(), msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(ch.published) != 1 {
		t.Fatalf("published %d messages", len(ch.published))
	}
	if ch.keys[0] != "rekord/report.queried" {
		t.Errorf("routing = %s", ch.keys[0])
	}
	pub := ch.published[0]
	if pub.ContentType != "application/json" || pub.Type != EventReportQueried {
		t.Errorf("unexpected publishing metadata: %+v", pub)
	}

	decoded, err := ReportQueriedMessageFromJSON(pub.Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Rows != 3 || decoded.DurationMs != 25 || len(decoded.Years) != 1 || decoded.Years[0] != 2024 {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.ObjectSymbols != nil {
		t.Errorf("empty symbol filter should be omitted, got %v", decoded.ObjectSymbols)
	}
}

func TestPublishError(t *testing.T) {
	ch := &fakeChannel{}
	client, _ := newClientWithChannel(ch, "rekord", "report.queried")
	ch.publishErr = errors.New("channel closed")

	err := client.PublishReportQueried(context.Background(), NewReportQueriedMessage(core.Filter{Years: []int{2024}}, 0, 0))
	if err == nil {
		t.Fatal("expected publish error")
	}
}

func TestCloseClosesChannel(t *testing.T) {
	ch := &fakeChannel{}
	client, _ := newClientWithChannel(ch, "rekord", "report.queried")
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !ch.closed {
		t.Error("channel not closed")
	}
}
