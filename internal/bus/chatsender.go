package bus

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/svarog-dev/warden/internal/domain"
	"golang.org/x/time/rate"
)

// ChatSender paces outbound chat commands so the external accounts are
// never flooded. Send never blocks the caller; an internal goroutine
// applies the rate limit and preserves send order.
type ChatSender struct {
	bus     *Bus
	limiter *rate.Limiter

	queue chan domain.ChatMessageEvent
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// NewChatSender creates a paced sender publishing through the bus.
func NewChatSender(b *Bus, interval time.Duration) *ChatSender {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	s := &ChatSender{
		bus:     b,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		queue:   make(chan domain.ChatMessageEvent, 64),
		done:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Send enqueues one command text for an actor. It fails only when the
// outbound buffer is full, which the relay handles as a send retry.
func (s *ChatSender) Send(actor domain.Actor, text string) error {
	select {
	case s.queue <- domain.ChatMessageEvent{Actor: actor, Text: text}:
		return nil
	default:
		return fmt.Errorf("outbound chat buffer full")
	}
}

// Close stops the pacing goroutine.
func (s *ChatSender) Close() {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
}

func (s *ChatSender) run() {
	defer s.wg.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		<-s.done
		cancel()
	}()

	for {
		select {
		case <-s.done:
			return
		case msg := <-s.queue:
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
			if err := s.bus.PublishChatOutbound(msg.Actor, msg.Text); err != nil {
				log.Printf("chat sender: publishing to %s: %v", msg.Actor, err)
			}
		}
	}
}
