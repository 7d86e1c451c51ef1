// Package geometry reúne os tipos de valor compartilhados pelo pipeline de
// visão (raios, pontos 3D) e o relatório goal/alvo calculado a cada tick.
package geometry

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// Ray é um ponto homogêneo (X, Y, 1) na imagem retificada de uma câmera,
// ou seja, no referencial descrito pelos novos intrínsecos nK.
type Ray struct {
	X float64
	Y float64
}

// RayFromPixel homogeneiza um pixel já retificado
func RayFromPixel(p r2.Point) Ray {
	return Ray{X: p.X, Y: p.Y}
}

// Vector retorna o raio como o vetor (X, Y, 1)
func (r Ray) Vector() r3.Vector {
	return r3.Vector{X: r.X, Y: r.Y, Z: 1}
}

// Pixel retorna o raio como ponto 2D
func (r Ray) Pixel() r2.Point {
	return r2.Point{X: r.X, Y: r.Y}
}

// IsFinite indica se as duas coordenadas são finitas
func (r Ray) IsFinite() bool {
	return isFinite(r.X) && isFinite(r.Y)
}

// IsFiniteVector indica se as coordenadas de v são finitas
func IsFiniteVector(v r3.Vector) bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
