// Package display guarda qual câmera é exibida e o último frame anotado.
package display

import (
	"fmt"
	"sync"
	"time"
)

// Selector é a célula de estado da câmera exibida. É lida uma vez por tick
// pelo rastreador e alterada apenas por comandos do operador.
type Selector struct {
	mu      sync.RWMutex
	cameras []int
	idx     int
}

// NewSelector cria o seletor sobre a ordem de câmeras dada, começando em initial
// (ou na primeira câmera, se initial não estiver na lista)
func NewSelector(cameras []int, initial int) *Selector {
	s := &Selector{cameras: append([]int(nil), cameras...)}
	for i, id := range s.cameras {
		if id == initial {
			s.idx = i
		}
	}
	return s
}

// Current retorna a câmera exibida (0 se não houver câmeras)
func (s *Selector) Current() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.cameras) == 0 {
		return 0
	}
	return s.cameras[s.idx]
}

// Cameras retorna a ordem de câmeras
func (s *Selector) Cameras() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int(nil), s.cameras...)
}

// Next avança para a próxima câmera, voltando à primeira no fim
func (s *Selector) Next() int {
	return s.step(1)
}

// Prev volta para a câmera anterior, indo à última no início
func (s *Selector) Prev() int {
	return s.step(-1)
}

func (s *Selector) step(delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.cameras)
	if n == 0 {
		return 0
	}
	s.idx = ((s.idx+delta)%n + n) % n
	return s.cameras[s.idx]
}

// Select escolhe uma câmera específica
func (s *Selector) Select(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.cameras {
		if c == id {
			s.idx = i
			return nil
		}
	}
	return fmt.Errorf("câmera %d não está disponível", id)
}

// Frame é o último frame anotado da câmera exibida
type Frame struct {
	Camera    int
	JPEG      []byte
	Timestamp time.Time
}

// FrameStore guarda o último frame anotado
type FrameStore struct {
	mu    sync.RWMutex
	frame Frame
}

// Store substitui o frame atual
func (f *FrameStore) Store(frame Frame) {
	f.mu.Lock()
	f.frame = frame
	f.mu.Unlock()
}

// Load retorna o frame atual; ok é false se nenhum foi gerado ainda
func (f *FrameStore) Load() (Frame, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.frame, f.frame.JPEG != nil
}
