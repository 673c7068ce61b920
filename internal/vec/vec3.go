package vec

import (
	"fmt"
	"math"
)

// Coord3D представляет позицию в мире с плавающими координатами
type Coord3D struct {
	X float64
	Y float64
	Z float64
}

// NewPosition создает позицию из координат, сообщённых протоколом.
// Смещение применяется здесь и только здесь: дальше по коду позиция уже скорректирована.
func NewPosition(x, y, z float64, offset Coord3D) Coord3D {
	return Coord3D{
		X: x + offset.X,
		Y: y + offset.Y,
		Z: z + offset.Z,
	}
}

// ChunkPos возвращает колонну, в которой находится позиция
func (v Coord3D) ChunkPos() Coord2D {
	return Coord2D{
		X: int(math.Floor(v.X / 16)),
		Z: int(math.Floor(v.Z / 16)),
	}
}

func (v Coord3D) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", v.X, v.Y, v.Z)
}
