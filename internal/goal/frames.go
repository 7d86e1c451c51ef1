package goal

import (
	"context"
	"time"
)

// BlankFrames entrega um frame vazio imediatamente; usado com StaticPicker,
// que não precisa da imagem
type BlankFrames struct{}

// NextFrame implementa FrameSource
func (BlankFrames) NextFrame(ctx context.Context, _ int) (Frame, error) {
	return Frame{}, ctx.Err()
}

// timeoutFrames limita a espera por frame de cada câmera
type timeoutFrames struct {
	src     FrameSource
	timeout time.Duration
}

// WithFrameTimeout aplica um limite à espera por frame de cada câmera. A
// câmera que estoura o limite é pulada pelo Acquirer. timeout <= 0 não limita.
func WithFrameTimeout(src FrameSource, timeout time.Duration) FrameSource {
	if timeout <= 0 {
		return src
	}
	return timeoutFrames{src: src, timeout: timeout}
}

func (t timeoutFrames) NextFrame(ctx context.Context, cameraID int) (Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.src.NextFrame(ctx, cameraID)
}
