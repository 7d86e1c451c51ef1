package redis

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-redis/redis/v8"

	"github.com/Junior0liveir4/distance-tiffany2point3d/pkg/logger"
)

// Feed é a assinatura de um tópico de uma câmera. Cada Feed usa sua própria
// conexão, de forma que uma câmera lenta não atrasa as outras. Quando o buffer
// enche, a mensagem mais antiga é descartada.
type Feed struct {
	topic  string
	out    chan []byte
	pubsub *redis.PubSub
	cancel context.CancelFunc
	wg     sync.WaitGroup

	overflow atomic.Uint64
	once     sync.Once
}

// NewFeed assina o tópico. Com o Redis desabilitado o Feed fica ocioso.
func (c *Client) NewFeed(ctx context.Context, topic string, bufferSize int) (*Feed, error) {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	f := &Feed{
		topic:  topic,
		out:    make(chan []byte, bufferSize),
		cancel: cancel,
	}

	if !c.Enabled() {
		logger.Warnf("Redis desabilitado: tópico %s não será assinado", topic)
		return f, nil
	}

	ps, err := c.subscribe(ctx, topic)
	if err != nil {
		cancel()
		return nil, err
	}
	f.pubsub = ps

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer close(f.out)
		f.forward(ctx, ps.Channel(redis.WithChannelSize(bufferSize)))
	}()

	logger.Infof("Assinado tópico %s", topic)
	return f, nil
}

// forward copia as mensagens para o buffer de saída até o contexto terminar
// ou a assinatura fechar
func (f *Feed) forward(ctx context.Context, in <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			f.push([]byte(msg.Payload))
		}
	}
}

func (f *Feed) push(payload []byte) {
	for {
		select {
		case f.out <- payload:
			return
		default:
		}
		// buffer cheio: descarta a mais antiga e tenta de novo
		select {
		case <-f.out:
			f.overflow.Add(1)
		default:
		}
	}
}

// Topic retorna o tópico assinado
func (f *Feed) Topic() string {
	return f.topic
}

// C retorna o canal de mensagens (payload bruto)
func (f *Feed) C() <-chan []byte {
	return f.out
}

// Overflow retorna quantas mensagens foram descartadas por buffer cheio
func (f *Feed) Overflow() uint64 {
	return f.overflow.Load()
}

// Close encerra a assinatura
func (f *Feed) Close() {
	f.once.Do(func() {
		f.cancel()
		if f.pubsub != nil {
			if err := f.pubsub.Close(); err != nil {
				logger.Warnf("Erro ao fechar assinatura %s: %v", f.topic, err)
			}
			f.wg.Wait()
		} else {
			close(f.out)
		}
	})
}
