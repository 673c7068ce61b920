package vec

import "fmt"

// Coord2D идентифицирует колонну чанков в мире (координаты чанка, не блока)
type Coord2D struct {
	X, Z int
}

// IsInRange проверяет, что другая колонна находится не дальше r чанков по каждой оси
func (c Coord2D) IsInRange(other Coord2D, r int) bool {
	return abs(c.X-other.X) <= r && abs(c.Z-other.Z) <= r
}

// Origin возвращает мировые координаты северо-западного блока колонны
func (c Coord2D) Origin() (x, z int) {
	return c.X << 4, c.Z << 4 // Умножение на 16
}

// Key возвращает строковый ключ колонны для хранилищ
func (c Coord2D) Key() string {
	return fmt.Sprintf("%d:%d", c.X, c.Z)
}

func (c Coord2D) String() string {
	return fmt.Sprintf("(%d, %d)", c.X, c.Z)
}

// Less задаёт порядок (X, затем Z) для стабильных снимков
func (c Coord2D) Less(other Coord2D) bool {
	if c.X != other.X {
		return c.X < other.X
	}
	return c.Z < other.Z
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
