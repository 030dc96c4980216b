package channel

import (
	"context"
	"testing"

	"github.com/chatwire/chatwire/internal/models"
)

type fakeAdapter struct {
	channelType models.ChannelType
}

func (f *fakeAdapter) Type() models.ChannelType { return f.channelType }

func (f *fakeAdapter) ParseInbound(body []byte) ([]models.InboundMessage, error) {
	return nil, nil
}

func (f *fakeAdapter) SendReply(ctx context.Context, integration *models.ChannelIntegration, recipientID string, reply *models.OutboundReply) error {
	return nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	adapter := &fakeAdapter{channelType: models.ChannelTelegram}
	if err := r.Register(adapter); err != nil {
		t.Fatalf("failed to register adapter: %v", err)
	}

	got, ok := r.Get(models.ChannelTelegram)
	if !ok {
		t.Fatal("expected adapter to be registered")
	}
	if got != adapter {
		t.Error("expected the registered adapter instance")
	}

	if _, ok := r.Get(models.ChannelWhatsApp); ok {
		t.Error("expected unregistered channel type to miss")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&fakeAdapter{channelType: models.ChannelMessenger}); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := r.Register(&fakeAdapter{channelType: models.ChannelMessenger}); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestRegistryRejectsNilAndUnknownTypes(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(nil); err == nil {
		t.Error("expected nil adapter to be rejected")
	}
	if err := r.Register(&fakeAdapter{channelType: "smoke-signals"}); err == nil {
		t.Error("expected unknown channel type to be rejected")
	}
}

func TestRegistryMustRegisterPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected MustRegister to panic on duplicate")
		}
	}()
	r := NewRegistry()
	r.MustRegister(&fakeAdapter{channelType: models.ChannelInstagram})
	r.MustRegister(&fakeAdapter{channelType: models.ChannelInstagram})
}

func TestRegistryTypes(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&fakeAdapter{channelType: models.ChannelTelegram})
	r.MustRegister(&fakeAdapter{channelType: models.ChannelWhatsApp})

	types := r.Types()
	if len(types) != 2 {
		t.Fatalf("expected 2 registered types, got %d", len(types))
	}
	seen := map[models.ChannelType]bool{}
	for _, ct := range types {
		seen[ct] = true
	}
	if !seen[models.ChannelTelegram] || !seen[models.ChannelWhatsApp] {
		t.Errorf("unexpected type set: %v", types)
	}
}
