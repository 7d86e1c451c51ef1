// Package frame trata as imagens das câmeras com OpenCV: decodificação,
// retificação, recorte, anotação e codificação JPEG para a interface.
package frame

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"

	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/calibration"
	"github.com/Junior0liveir4/distance-tiffany2point3d/internal/models"
)

var (
	targetColor = color.RGBA{R: 255, A: 255}
	goalColor   = color.RGBA{B: 255, A: 255}
	arrowColor  = color.RGBA{A: 255}
)

// Decode converte a mensagem de imagem do gateway em uma Mat BGR.
// O chamador deve fechar a Mat.
func Decode(payload []byte) (gocv.Mat, error) {
	var msg models.ImageMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return gocv.NewMat(), fmt.Errorf("mensagem de imagem inválida: %w", err)
	}
	if len(msg.Data) == 0 {
		return gocv.NewMat(), errors.New("mensagem de imagem sem dados")
	}
	img, err := gocv.IMDecode(msg.Data, gocv.IMReadColor)
	if err != nil {
		return img, fmt.Errorf("erro ao decodificar imagem: %w", err)
	}
	if img.Empty() {
		return img, errors.New("imagem vazia após decodificação")
	}
	return img, nil
}

// UndistortAndCrop retifica o frame com K, dist e nK e recorta para o tamanho
// da ROI a partir da origem (0:h, 0:w). Só é usado para exibição e seleção;
// a triangulação usa UndistortPoint, sem recorte.
func UndistortAndCrop(src gocv.Mat, cal *calibration.CameraCalibration) (gocv.Mat, error) {
	if src.Empty() {
		return gocv.NewMat(), errors.New("frame vazio")
	}

	k := denseToMat(cal.K)
	defer k.Close()
	nk := denseToMat(cal.NK)
	defer nk.Close()
	dist := gocv.NewMatWithSize(1, len(cal.Dist), gocv.MatTypeCV64F)
	defer dist.Close()
	for i, c := range cal.Dist {
		dist.SetDoubleAt(0, i, c)
	}

	undistorted := gocv.NewMat()
	defer undistorted.Close()
	gocv.Undistort(src, &undistorted, k, dist, nk)

	w := min(cal.ROI.Dx(), undistorted.Cols())
	h := min(cal.ROI.Dy(), undistorted.Rows())
	if w <= 0 || h <= 0 {
		return gocv.NewMat(), fmt.Errorf("roi %v fora do frame %dx%d", cal.ROI, undistorted.Cols(), undistorted.Rows())
	}

	region := undistorted.Region(image.Rect(0, 0, w, h))
	defer region.Close()
	return region.Clone(), nil
}

// Markers são as posições desenhadas sobre o frame retificado
type Markers struct {
	Target *image.Point
	Goal   *image.Point
}

// Annotate desenha o alvo (vermelho), o goal (azul) e a seta do alvo ao goal
func Annotate(img *gocv.Mat, m Markers) {
	if m.Target != nil {
		gocv.Circle(img, *m.Target, 8, targetColor, -1)
	}
	if m.Goal != nil {
		gocv.Circle(img, *m.Goal, 8, goalColor, -1)
	}
	if m.Target != nil && m.Goal != nil {
		gocv.ArrowedLine(img, *m.Target, *m.Goal, arrowColor, 2)
	}
}

// EncodeJPEG codifica a Mat como JPEG
func EncodeJPEG(img gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("erro ao codificar JPEG: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}

func denseToMat(m mat.Matrix) gocv.Mat {
	r, c := m.Dims()
	out := gocv.NewMatWithSize(r, c, gocv.MatTypeCV64F)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.SetDoubleAt(i, j, m.At(i, j))
		}
	}
	return out
}
