// Package stream transforma um canal de mensagens com buffer em uma fonte de
// "último valor": cada leitura devolve a mensagem mais nova e descarta o resto.
package stream

import (
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// Latest encapsula o canal de mensagens de um produtor
type Latest[T any] struct {
	src   <-chan T
	clock clock.Clock

	received atomic.Uint64
	dropped  atomic.Uint64
	closed   atomic.Bool
}

// Option configura um Latest
type Option func(*options)

type options struct {
	clock clock.Clock
}

// WithClock substitui o relógio usado no timeout do primeiro valor
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// NewLatest cria o adaptador sobre src
func NewLatest[T any](src <-chan T, opts ...Option) *Latest[T] {
	o := options{clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Latest[T]{src: src, clock: o.clock}
}

// GetLatest espera até timeout pelo primeiro valor, esvazia sem bloquear o que
// já estava na fila nesse momento e retorna o mais novo com o número de descartados. ok é
// false quando nada chegou a tempo ou a fonte fechou, o que não é erro.
func (l *Latest[T]) GetLatest(timeout time.Duration) (value T, dropped int, ok bool) {
	value, ok = l.first(timeout)
	if !ok {
		return value, 0, false
	}

	// só o que já estava na fila; um produtor contínuo não prende a leitura.
	// A leitura extra nota o fechamento logo após o último valor.
	n := len(l.src)
	for i := 0; i <= n; i++ {
		select {
		case v, open := <-l.src:
			if !open {
				l.closed.Store(true)
				l.account(dropped)
				return value, dropped, true
			}
			value = v
			dropped++
		default:
			l.account(dropped)
			return value, dropped, true
		}
	}
	l.account(dropped)
	return value, dropped, true
}

func (l *Latest[T]) first(timeout time.Duration) (T, bool) {
	var zero T

	// caminho rápido: já existe algo na fila
	select {
	case v, open := <-l.src:
		if !open {
			l.closed.Store(true)
			return zero, false
		}
		return v, true
	default:
	}
	if timeout <= 0 {
		return zero, false
	}

	timer := l.clock.Timer(timeout)
	defer timer.Stop()

	select {
	case v, open := <-l.src:
		if !open {
			l.closed.Store(true)
			return zero, false
		}
		return v, true
	case <-timer.C:
		return zero, false
	}
}

func (l *Latest[T]) account(dropped int) {
	l.received.Add(uint64(dropped) + 1)
	l.dropped.Add(uint64(dropped))
}

// Stats retorna os totais de valores recebidos e descartados
func (l *Latest[T]) Stats() (received, dropped uint64) {
	return l.received.Load(), l.dropped.Load()
}

// Closed indica se o canal de origem foi fechado
func (l *Latest[T]) Closed() bool {
	return l.closed.Load()
}
