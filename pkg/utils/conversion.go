package utils

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Float32ToBytes converte um valor float32 para bytes (formato IEEE 754, big-endian como o S7)
func Float32ToBytes(val float32) []byte {
	bytes := make([]byte, 4)
	PutFloat32(bytes, val)
	return bytes
}

// PutFloat32 escreve um REAL em buf[0:4]
func PutFloat32(buf []byte, val float32) {
	binary.BigEndian.PutUint32(buf, math.Float32bits(val))
}

// BytesToFloat32 converte bytes para float32 (formato IEEE 754)
func BytesToFloat32(bytes []byte) float32 {
	bits := binary.BigEndian.Uint32(bytes)
	return math.Float32frombits(bits)
}

// Int16ToBytes converte um valor int16 para bytes
func Int16ToBytes(val int16) []byte {
	bytes := make([]byte, 2)
	PutInt16(bytes, val)
	return bytes
}

// PutInt16 escreve um INT em buf[0:2]
func PutInt16(buf []byte, val int16) {
	binary.BigEndian.PutUint16(buf, uint16(val))
}

// BytesToInt16 converte bytes para int16
func BytesToInt16(bytes []byte) int16 {
	return int16(binary.BigEndian.Uint16(bytes))
}

// FormatFloat formata um float com precisão específica
func FormatFloat(value float64, precision int) string {
	format := "%." + strconv.Itoa(precision) + "f"
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf(format, value), "0"), ".")
}
